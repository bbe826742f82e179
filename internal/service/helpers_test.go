package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/queue"
	"github.com/timmy/catalogetl/internal/repository"
	"github.com/timmy/catalogetl/internal/storage"
)

const threeRowCSV = "name,sku,productUrl,weight,weightUnit,price,brand\n" +
	"Tent,T-1,https://example.com/t1,16,oz,199.99,Acme\n" +
	"Stove,S-1,https://example.com/s1,2,lb,49.5,Acme\n" +
	"Broken,,https://example.com/b,1,kg,5,Acme\n"

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	dim   int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) GetModel() string   { return "fake" }
func (f *fakeEmbedder) GetDimensions() int { return f.dim }

func (f *fakeEmbedder) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

type fakeVectors struct {
	mu       sync.Mutex
	upserted []*domain.CatalogItem
	hits     []repository.SearchResult
}

func (f *fakeVectors) UpsertItems(_ context.Context, items []*domain.CatalogItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, items...)
	return len(items), nil
}

func (f *fakeVectors) Search(context.Context, []float32, int, *repository.SearchFilters) ([]repository.SearchResult, error) {
	return f.hits, nil
}

// testEnv wires the pipeline over SQLite, memory storage and memory queues.
type testEnv struct {
	jobs     *repository.JobRepository
	items    *repository.CatalogRepository
	logs     *repository.InvalidItemRepository
	store    *storage.MemoryStorage
	chunks   *queue.MemoryQueue
	writes   *queue.MemoryQueue
	logQueue *queue.MemoryQueue
	embedder *fakeEmbedder
	vectors  *fakeVectors
	chunker  *Chunker
	writer   *WriteConsumer
	router   *MessageRouter
	ingest   *IngestService
}

func newTestEnv(t *testing.T, cfg ChunkerConfig) *testEnv {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "catalog.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		jobs:     repository.NewJobRepository(db),
		items:    repository.NewCatalogRepository(db),
		logs:     repository.NewInvalidItemRepository(db),
		store:    storage.NewMemoryStorage(),
		chunks:   queue.NewMemoryQueue(),
		writes:   queue.NewMemoryQueue(),
		logQueue: queue.NewMemoryQueue(),
		embedder: &fakeEmbedder{dim: 4},
		vectors:  &fakeVectors{},
	}
	dispatcher := NewDispatcher(env.chunks, env.writes, env.logQueue)
	env.chunker = NewChunker(env.store, dispatcher, env.jobs, cfg)
	env.writer = NewWriteConsumer(env.items, env.jobs, env.embedder, env.vectors)
	logConsumer := NewLogConsumer(env.logs)
	env.router = NewMessageRouter(env.chunker, env.writer, logConsumer)
	env.ingest = NewIngestService(env.store, env.jobs, dispatcher, env.writer, logConsumer, cfg)
	return env
}

func (e *testEnv) newJob(t *testing.T, key string) *domain.ETLJob {
	t.Helper()
	job := &domain.ETLJob{Source: "vendor", Filename: key}
	require.NoError(t, e.jobs.Create(context.Background(), job))
	return job
}

func decodeAll[T any](t *testing.T, bodies [][]byte) []T {
	t.Helper()
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		env, err := queue.Decode(body)
		require.NoError(t, err)
		var msg T
		require.NoError(t, env.Into(&msg))
		out = append(out, msg)
	}
	return out
}

func strPtr(s string) *string { return &s }

// Package app builds the pipeline components shared by the api, worker and
// ingest binaries from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/timmy/catalogetl/internal/config"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/queue"
	"github.com/timmy/catalogetl/internal/repository"
	"github.com/timmy/catalogetl/internal/service"
	"github.com/timmy/catalogetl/internal/storage"
)

const memoryDrainInterval = time.Second

// App holds the wired pipeline.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Storage storage.ObjectStorage
	Jobs    *repository.JobRepository
	Items   *repository.CatalogRepository
	Logs    *repository.InvalidItemRepository

	Ingest *service.IngestService
	Search *service.SearchService
	Router *service.MessageRouter

	qdrant    *repository.QdrantRepository
	sqsClient *sqs.Client
	memory    []*queue.MemoryQueue
}

// New connects every backing service named in cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.Jobs = repository.NewJobRepository(db)
	a.Items = repository.NewCatalogRepository(db)
	a.Logs = repository.NewInvalidItemRepository(db)

	a.Storage, err = storage.NewStorage(ctx, &storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedding service.EmbeddingProvider
	if cfg.Embedding.Enabled {
		embedding, err = service.NewEmbeddingProvider(&service.EmbeddingProviderConfig{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var (
		vectors  service.VectorWriter
		searcher service.VectorSearcher
	)
	if cfg.Qdrant.Enabled {
		a.qdrant, err = repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.qdrant.EnsureCollection(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
		}
		vectors, searcher = a.qdrant, a.qdrant
	}

	chunks, writes, logs, err := a.queues(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	chunkerCfg := service.ChunkerConfig{
		ChunkSize:        cfg.ETL.ChunkSize,
		BatchSize:        cfg.ETL.BatchSize,
		InvalidBatchSize: cfg.ETL.InvalidBatchSize,
		FlushDelay:       cfg.ETL.FlushDelay,
		ReadSize:         cfg.ETL.ReadSize,
	}
	dispatcher := service.NewDispatcher(chunks, writes, logs)
	chunker := service.NewChunker(a.Storage, dispatcher, a.Jobs, chunkerCfg)
	writer := service.NewWriteConsumer(a.Items, a.Jobs, embedding, vectors)
	logConsumer := service.NewLogConsumer(a.Logs)

	a.Router = service.NewMessageRouter(chunker, writer, logConsumer)
	a.Ingest = service.NewIngestService(a.Storage, a.Jobs, dispatcher, writer, logConsumer, chunkerCfg)
	a.Search = service.NewSearchService(a.Items, searcher, embedding, &service.SearchConfig{
		ScoreThreshold: cfg.Qdrant.ScoreThreshold,
	})
	return a, nil
}

func (a *App) queues(ctx context.Context) (chunks, writes, logs queue.Queue, err error) {
	qc := a.Config.Queue
	if qc.Provider == "memory" {
		c, w, l := queue.NewMemoryQueue(), queue.NewMemoryQueue(), queue.NewMemoryQueue()
		a.memory = []*queue.MemoryQueue{c, w, l}
		return c, w, l, nil
	}

	if qc.ChunkQueueURL == "" || qc.WriteQueueURL == "" || qc.LogQueueURL == "" {
		return nil, nil, nil, errors.New("queue: chunk, write and log queue URLs are required")
	}
	a.sqsClient, err = queue.NewSQSClient(ctx, queue.ClientConfig{
		Region:    qc.Region,
		Endpoint:  qc.Endpoint,
		AccessKey: qc.AccessKey,
		SecretKey: qc.SecretKey,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return queue.NewSQSQueue(a.sqsClient, qc.ChunkQueueURL),
		queue.NewSQSQueue(a.sqsClient, qc.WriteQueueURL),
		queue.NewSQSQueue(a.sqsClient, qc.LogQueueURL),
		nil
}

// RunWorkers consumes the chunk, write and log queues until ctx is
// cancelled. With the memory provider the queues are drained in-process.
func (a *App) RunWorkers(ctx context.Context) error {
	if a.memory != nil {
		return a.drainMemory(ctx)
	}

	qc := a.Config.Queue
	g, ctx := errgroup.WithContext(ctx)
	for name, url := range map[string]string{
		"chunk": qc.ChunkQueueURL,
		"write": qc.WriteQueueURL,
		"log":   qc.LogQueueURL,
	} {
		poller := queue.NewPoller(name, a.sqsClient, queue.PollerConfig{
			QueueURL:          url,
			MaxMessages:       qc.MaxMessages,
			WaitSeconds:       qc.WaitSeconds,
			VisibilityTimeout: qc.VisibilityTimeout,
			Concurrency:       qc.Concurrency,
			HandlerTimeout:    time.Duration(qc.VisibilityTimeout) * time.Second,
		}, a.Router.Handle)
		g.Go(func() error { return poller.Run(ctx) })
	}
	return g.Wait()
}

func (a *App) drainMemory(ctx context.Context) error {
	ticker := time.NewTicker(memoryDrainInterval)
	defer ticker.Stop()
	for {
		for _, q := range a.memory {
			if _, err := q.Drain(ctx, a.Router.Handle); err != nil && ctx.Err() == nil {
				logger.CtxError(ctx, "Failed to drain memory queue: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases the database and vector index connections.
func (a *App) Close() {
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			logger.Warn("Failed to close qdrant connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// InitLogger installs the default logger described by the logging section.
// Call logger.Sync before exit to close a rotating log file.
func InitLogger(cfg *config.Config, name string) *logger.Logger {
	l := logger.NewFromEnv(cfg.Logging.LoggerConfig(name))
	logger.SetDefaultLogger(l)
	return l
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

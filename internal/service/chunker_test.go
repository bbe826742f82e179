package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/queue"
)

func fiveRowCSV() string {
	var b strings.Builder
	b.WriteString("name,sku,productUrl,weight,weightUnit\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "Item %d,SKU-%d,https://example.com/%d,100,g\n", i, i, i)
	}
	return b.String()
}

func TestChunkerContinuationOffsets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 2, ReadSize: 16})
	env.store.Put("five.csv", []byte(fiveRowCSV()))
	job := env.newJob(t, "five.csv")

	require.NoError(t, NewDispatcher(env.chunks, env.writes, env.logQueue).
		SendChunk(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "five.csv"}))

	var offsets []int
	var results []*ChunkResult
	_, err := env.chunks.Drain(ctx, func(ctx context.Context, body []byte) error {
		msgs := decodeAll[domain.ChunkMessage](t, [][]byte{body})
		offsets = append(offsets, msgs[0].StartRow)
		res, err := env.chunker.Process(ctx, msgs[0])
		results = append(results, res)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, offsets)
	require.Len(t, results, 3)
	assert.True(t, results[0].Continued)
	assert.True(t, results[1].Continued)
	assert.False(t, results[2].Continued)
	assert.Equal(t, 1, results[2].Consumed)

	writes := decodeAll[domain.WriteBatchMessage](t, env.writes.Messages())
	require.Len(t, writes, 3)
	assert.Equal(t, "SKU-0", writes[0].Items[0].SKU)
	assert.Equal(t, "SKU-4", writes[2].Items[0].SKU)
	assert.Equal(t, 5, writes[2].RunningTotal)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TotalCount)
	assert.Equal(t, 5, *got.TotalCount)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestChunkerExactMultipleSendsEmptyTail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 5})
	env.store.Put("five.csv", []byte(fiveRowCSV()))
	job := env.newJob(t, "five.csv")

	res, err := env.chunker.Process(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "five.csv"})
	require.NoError(t, err)
	assert.True(t, res.Continued)

	res, err = env.chunker.Process(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "five.csv", StartRow: 5})
	require.NoError(t, err)
	assert.False(t, res.Continued)
	assert.Zero(t, res.Consumed)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, *got.TotalCount)
}

func TestChunkerFlushesAtThreshold(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 100, BatchSize: 2})
	env.store.Put("five.csv", []byte(fiveRowCSV()))
	job := env.newJob(t, "five.csv")

	res, err := env.chunker.Process(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "five.csv"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.WriteBatches)

	writes := decodeAll[domain.WriteBatchMessage](t, env.writes.Messages())
	require.Len(t, writes, 3)
	assert.Len(t, writes[0].Items, 2)
	assert.Equal(t, 2, writes[0].RunningTotal)
	assert.Len(t, writes[2].Items, 1)
}

func TestChunkerQuotedNewlinesAndBlankLines(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 10, ReadSize: 7})
	csv := "\uFEFFname,sku,productUrl,weight,weightUnit,description\n" +
		"\n" +
		"Tent,T-1,https://example.com/t,1,kg,\"two\nlines\"\n" +
		"Stove,S-1,https://example.com/s,2,lb,plain\n"
	env.store.Put("q.csv", []byte(csv))
	job := env.newJob(t, "q.csv")

	res, err := env.chunker.Process(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "q.csv"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Consumed)
	assert.Equal(t, 2, res.Valid)

	writes := decodeAll[domain.WriteBatchMessage](t, env.writes.Messages())
	require.Len(t, writes, 1)
	require.NotNil(t, writes[0].Items[0].Description)
	assert.Equal(t, "two lines", *writes[0].Items[0].Description)
}

func TestChunkerMissingObjectFailsJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 10})
	job := env.newJob(t, "missing.csv")

	err := env.chunker.ProcessChunk(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "missing.csv"})
	require.Error(t, err)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorLog, "missing.csv")
	assert.NotNil(t, got.CompletedAt)
}

type failingQueue struct{}

func (failingQueue) Send(context.Context, []byte) error { return errors.New("queue down") }

func (failingQueue) SendBatch(context.Context, [][]byte) error { return errors.New("queue down") }

func TestChunkerSendFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{ChunkSize: 10})
	env.store.Put("five.csv", []byte(fiveRowCSV()))
	job := env.newJob(t, "five.csv")

	chunker := NewChunker(env.store, NewDispatcher(env.chunks, failingQueue{}, env.logQueue), env.jobs, ChunkerConfig{ChunkSize: 10})
	err := chunker.ProcessChunk(ctx, domain.ChunkMessage{JobID: job.ID, ObjectKey: "five.csv"})
	require.ErrorContains(t, err, "queue down")

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

var _ queue.Queue = failingQueue{}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/catalogetl/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }

func TestWriteConsumerMergesAndCountsOriginalRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{})
	job := env.newJob(t, "a.csv")

	err := env.writer.Consume(ctx, domain.WriteBatchMessage{
		JobID: job.ID,
		Items: []*domain.CatalogItem{
			{SKU: "A", Name: strPtr("Tent"), Price: floatPtr(10)},
			{SKU: "A", Brand: strPtr("X")},
			{SKU: "B", Name: strPtr("Stove")},
		},
	})
	require.NoError(t, err)

	a, err := env.items.GetBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 10.0, *a.Price)
	assert.Equal(t, "X", *a.Brand)

	calls := env.embedder.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 2)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Valid())
}

func TestWriteConsumerStoresWithoutEmbeddingOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{})
	env.embedder.err = errors.New("provider down")
	job := env.newJob(t, "a.csv")

	err := env.writer.Consume(ctx, domain.WriteBatchMessage{
		JobID: job.ID,
		Items: []*domain.CatalogItem{{SKU: "A", Name: strPtr("Tent")}},
	})
	require.NoError(t, err)

	a, err := env.items.GetBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, a.Embedding)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Valid())
}

func TestWriteConsumerRefreshesEmbeddingFromStoredRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{})
	job := env.newJob(t, "a.csv")

	require.NoError(t, env.writer.Consume(ctx, domain.WriteBatchMessage{
		JobID: job.ID,
		Items: []*domain.CatalogItem{{SKU: "A", Name: strPtr("Tent")}},
	}))
	require.NoError(t, env.writer.Consume(ctx, domain.WriteBatchMessage{
		JobID: job.ID,
		Items: []*domain.CatalogItem{{SKU: "A", Name: strPtr("Renamed Tent"), Brand: strPtr("Acme")}},
	}))

	calls := env.embedder.Calls()
	require.Len(t, calls, 3)
	last := calls[2][0]
	assert.True(t, strings.Contains(last, "name:Tent"), last)
	assert.Contains(t, last, "brand:Acme")

	a, err := env.items.GetBySKU(ctx, "A")
	require.NoError(t, err)
	require.Len(t, a.Embedding, 4)
	assert.Equal(t, float32(len(last)), a.Embedding[0])
}

func TestLogConsumerStoresRawRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{})
	job := env.newJob(t, "a.csv")

	err := NewLogConsumer(env.logs).Consume(ctx, domain.LogBatchMessage{
		JobID: job.ID,
		InvalidItems: []domain.InvalidRow{{
			RowIndex: 7,
			Errors:   []domain.FieldError{{Field: "weight", Reason: "weight is required"}},
			Raw:      &domain.CatalogItem{SKU: "W-1", Name: strPtr("Weightless")},
		}},
	})
	require.NoError(t, err)

	logs, err := env.logs.ListByJob(ctx, job.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 7, logs[0].RowIndex)
	assert.Contains(t, string(logs[0].RawData), `"sku":"W-1"`)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Invalid())
}

func TestBuildEmbeddingText(t *testing.T) {
	item := &domain.CatalogItem{
		SKU:         "A",
		Name:        strPtr("  Trail   Tent "),
		Brand:       strPtr("Acme"),
		Categories:  domain.StringList{"tents", "camping", "tents"},
		Color:       strPtr("green"),
		Description: strPtr("Two\nperson"),
	}
	assert.Equal(t, "name:Trail Tent\nbrand:Acme\ncategories:tents camping\nattributes:green\ndesc:Two person",
		BuildEmbeddingText(item))
	assert.Empty(t, BuildEmbeddingText(&domain.CatalogItem{SKU: "B"}))
	assert.Empty(t, BuildEmbeddingText(nil))
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/repository"
)

func TestSearchReturnsStoredItemsInScoreOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ChunkerConfig{})
	job := env.newJob(t, "a.csv")
	require.NoError(t, env.writer.Consume(ctx, domain.WriteBatchMessage{
		JobID: job.ID,
		Items: []*domain.CatalogItem{
			{SKU: "A", Name: strPtr("Tent")},
			{SKU: "B", Name: strPtr("Stove")},
		},
	}))

	env.vectors.hits = []repository.SearchResult{
		{Score: 0.9, Payload: &repository.CatalogPayload{SKU: "B"}},
		{Score: 0.8, Payload: &repository.CatalogPayload{SKU: "B"}},
		{Score: 0.7, Payload: &repository.CatalogPayload{SKU: "A"}},
		{Score: 0.1, Payload: &repository.CatalogPayload{SKU: "A-low"}},
		{Score: 0.9},
	}
	svc := NewSearchService(env.items, env.vectors, env.embedder, &SearchConfig{ScoreThreshold: 0.5})

	resp, err := svc.Search(ctx, &SearchRequest{Query: "  camping  "})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "B", resp.Results[0].SKU)
	assert.Equal(t, float32(0.9), resp.Results[0].Score)
	assert.Equal(t, "A", resp.Results[1].SKU)
	assert.Nil(t, resp.Results[0].Embedding)
	assert.Equal(t, "camping", resp.Query)
}

func TestSearchUnavailableAndInvalid(t *testing.T) {
	env := newTestEnv(t, ChunkerConfig{})

	_, err := NewSearchService(env.items, nil, env.embedder, nil).Search(context.Background(), &SearchRequest{Query: "x"})
	assert.ErrorIs(t, err, ErrSearchUnavailable)

	_, err = NewSearchService(env.items, env.vectors, env.embedder, nil).Search(context.Background(), &SearchRequest{Query: " "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

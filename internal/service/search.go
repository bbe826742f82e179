package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/catalogetl/internal/domain"
	"github.com/timmy/catalogetl/internal/logger"
	"github.com/timmy/catalogetl/internal/repository"
)

// ErrSearchUnavailable is returned when no embedding provider or vector
// index is configured.
var ErrSearchUnavailable = errors.New("semantic search is not configured")

const (
	defaultTopK = 20
	maxTopK     = 100
)

// VectorSearcher finds the nearest stored vectors.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filters *repository.SearchFilters) ([]repository.SearchResult, error)
}

// SearchConfig holds configuration for search service.
type SearchConfig struct {
	ScoreThreshold float32
}

// SearchService runs semantic search over the catalog.
type SearchService struct {
	items          *repository.CatalogRepository
	vectors        VectorSearcher
	embedding      EmbeddingProvider
	scoreThreshold float32
}

// NewSearchService creates a new search service.
// Parameters:
//   - items: repository used to load matched items.
//   - vectors: vector index; nil disables search.
//   - embedding: provider for query vectors; nil disables search.
//   - cfg: search configuration settings.
//
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(items *repository.CatalogRepository, vectors VectorSearcher, embedding EmbeddingProvider, cfg *SearchConfig) *SearchService {
	s := &SearchService{items: items, vectors: vectors, embedding: embedding}
	if cfg != nil {
		s.scoreThreshold = cfg.ScoreThreshold
	}
	return s
}

// Enabled reports whether search can run.
func (s *SearchService) Enabled() bool {
	return s.vectors != nil && s.embedding != nil
}

// SearchRequest represents a text search request.
type SearchRequest struct {
	Query    string  `json:"query" binding:"required"`
	TopK     int     `json:"top_k"`
	Brand    *string `json:"brand,omitempty"`
	Category *string `json:"category,omitempty"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Results []domain.CatalogItemSearchResult `json:"results"`
	Total   int                              `json:"total"`
	Query   string                           `json:"query"`
}

// Search embeds the query, searches the vector index and returns the
// matching catalog rows in score order.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if !s.Enabled() {
		return nil, ErrSearchUnavailable
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	ctx = logger.SetComponent(ctx, "search")
	start := time.Now()

	vector, err := s.embedding.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.vectors.Search(ctx, vector, topK, &repository.SearchFilters{
		Brand:    req.Brand,
		Category: req.Category,
	})
	if err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(hits))
	scores := make(map[string]float32, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil || hit.Payload.SKU == "" || hit.Score < s.scoreThreshold {
			continue
		}
		if _, seen := scores[hit.Payload.SKU]; seen {
			continue
		}
		skus = append(skus, hit.Payload.SKU)
		scores[hit.Payload.SKU] = hit.Score
	}

	items, err := s.items.GetBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	results := make([]domain.CatalogItemSearchResult, 0, len(items))
	for _, item := range items {
		item.Embedding = nil
		results = append(results, domain.CatalogItemSearchResult{CatalogItem: *item, Score: scores[item.SKU]})
	}

	logger.With(logger.Fields{"query": query, "hits": len(hits)}).
		WithCount(len(results)).WithDuration(start).Info(ctx, "Search completed")
	return &SearchResponse{Results: results, Total: len(results), Query: query}, nil
}

// GetItem returns one catalog item by SKU.
func (s *SearchService) GetItem(ctx context.Context, sku string) (*domain.CatalogItem, error) {
	return s.items.GetBySKU(ctx, sku)
}

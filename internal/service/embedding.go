package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	jinaEndpoint          = "https://api.jina.ai/v1/embeddings"
	defaultEmbedTimeout   = 30 * time.Second
	defaultEmbedRetries   = 2
	embeddingsPath        = "/embeddings"
	providerJina          = "jina"
	providerOpenAICompat  = "openai-compatible"
	taskRetrievalPassage  = "retrieval.passage"
	taskRetrievalQuery    = "retrieval.query"
	embeddingTypeFloating = "float"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	GetModel() string
	GetDimensions() int
}

// EmbeddingProviderConfig holds configuration for an embedding provider.
type EmbeddingProviderConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingProvider creates the provider named by cfg.Provider.
func NewEmbeddingProvider(cfg *EmbeddingProviderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case providerJina, "":
		return NewEmbeddingService(cfg), nil
	case providerOpenAICompat:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("base URL is required for provider %q", cfg.Provider)
		}
		return NewOpenAIEmbeddingService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newEmbeddingClient(cfg *EmbeddingProviderConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(defaultEmbedRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	return client
}

// EmbeddingService generates embeddings with the Jina API.
type EmbeddingService struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewEmbeddingService creates a new Jina embedding service. cfg.BaseURL,
// when set, replaces the public Jina endpoint.
func NewEmbeddingService(cfg *EmbeddingProviderConfig) *EmbeddingService {
	endpoint := jinaEndpoint
	if cfg.BaseURL != "" {
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + embeddingsPath
	}
	return &EmbeddingService{
		client:     newEmbeddingClient(cfg),
		endpoint:   endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// GetModel returns the model name being used
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// GetDimensions returns the requested vector size.
func (s *EmbeddingService) GetDimensions() int {
	return s.dimensions
}

// Jina API request/response structures
type jinaRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *embeddingResponse) message() string {
	if r.Detail != "" {
		return r.Detail
	}
	if r.Error != nil {
		return r.Error.Message
	}
	return ""
}

// ordered places each returned vector at its reported index.
func (r *embeddingResponse) ordered(expected int) ([][]float32, error) {
	if len(r.Data) != expected {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(r.Data), expected)
	}
	embeddings := make([][]float32, expected)
	for _, item := range r.Data {
		if item.Index < 0 || item.Index >= expected {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}

func (s *EmbeddingService) call(ctx context.Context, task string, texts []string) (*embeddingResponse, error) {
	req := jinaRequest{
		Model:         s.model,
		Task:          task,
		Dimensions:    s.dimensions,
		Input:         texts,
		EmbeddingType: embeddingTypeFloating,
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call Jina API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		if msg := resp.message(); msg != "" {
			return nil, fmt.Errorf("Jina API error: %s", msg)
		}
		return nil, fmt.Errorf("Jina API error: status %d", httpResp.StatusCode())
	}
	return &resp, nil
}

// EmbedBatch generates embeddings for multiple texts
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := s.call(ctx, taskRetrievalPassage, texts)
	if err != nil {
		return nil, err
	}
	return resp.ordered(len(texts))
}

// EmbedQuery generates an embedding optimized for query/search
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := s.call(ctx, taskRetrievalQuery, []string{query})
	if err != nil {
		return nil, err
	}
	out, err := resp.ordered(1)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// OpenAIEmbeddingService talks to any endpoint implementing the OpenAI
// /embeddings API.
type OpenAIEmbeddingService struct {
	client     *resty.Client
	endpoint   string
	model      string
	dimensions int
}

// NewOpenAIEmbeddingService creates a client for cfg.BaseURL.
func NewOpenAIEmbeddingService(cfg *EmbeddingProviderConfig) *OpenAIEmbeddingService {
	return &OpenAIEmbeddingService{
		client:     newEmbeddingClient(cfg),
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + embeddingsPath,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

type openAIRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

func (s *OpenAIEmbeddingService) GetModel() string   { return s.model }
func (s *OpenAIEmbeddingService) GetDimensions() int { return s.dimensions }

func (s *OpenAIEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(openAIRequest{
			Model:          s.model,
			Input:          texts,
			Dimensions:     s.dimensions,
			EncodingFormat: embeddingTypeFloating,
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		if msg := resp.message(); msg != "" {
			return nil, fmt.Errorf("embeddings API error: %s", msg)
		}
		return nil, fmt.Errorf("embeddings API error: status %d", httpResp.StatusCode())
	}
	return resp.ordered(len(texts))
}

func (s *OpenAIEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

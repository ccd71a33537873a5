package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
)

// OpenAIProvider generates dense embeddings through an OpenAI-compatible
// embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	logger    *logging.Logger
}

// NewOpenAIProvider creates a provider backed by an OpenAI-compatible API.
// BaseURL overrides the default endpoint when set.
func NewOpenAIProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key required", apperr.ErrInvalidInput)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", apperr.ErrInvalidInput)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		logger:    logger,
	}, nil
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     p.dimension,
	})
	if err != nil {
		return nil, parseAPIError(err)
	}
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", apperr.ErrUpstreamUnavailable, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// EmbedDocuments embeds a batch of texts in input order.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		metrics.ObserveEmbedding("openai", "embed_documents", time.Since(start).Seconds(), len(texts), embErr)
	}()

	if len(texts) == 0 {
		embErr = fmt.Errorf("%w: texts cannot be empty", apperr.ErrInvalidInput)
		return nil, embErr
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		embErr = err
		return nil, err
	}
	if err := validateBatch(vectors, len(texts), p.dimension); err != nil {
		embErr = err
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		metrics.ObserveEmbedding("openai", "embed_query", time.Since(start).Seconds(), 1, embErr)
	}()

	if text == "" {
		embErr = fmt.Errorf("%w: text cannot be empty", apperr.ErrInvalidInput)
		return nil, embErr
	}
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		embErr = err
		return nil, err
	}
	if err := validateBatch(vectors, 1, p.dimension); err != nil {
		embErr = err
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the configured vector width.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Close is a no-op; the underlying client is stateless HTTP.
func (p *OpenAIProvider) Close() error { return nil }

// parseAPIError maps client errors onto the upstream-unavailable class so
// callers surface them as 502s.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: embedding api status %d: %s",
			apperr.ErrUpstreamUnavailable, reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: embedding api status %d: %s",
			apperr.ErrUpstreamUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: embedding request failed: %v", apperr.ErrUpstreamUnavailable, err)
}

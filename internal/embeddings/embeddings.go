// Package embeddings generates dense and sparse vector representations of
// text for the vector index.
package embeddings

import (
	"context"
	"fmt"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
)

// Provider generates dense embeddings. Implementations are safe for
// concurrent use.
type Provider interface {
	// EmbedDocuments embeds a batch of chunk texts in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the width of vectors this provider produces.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates a dense provider from configuration.
func NewProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewTEIProvider(cfg, logger)
	case "openai":
		return NewOpenAIProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", apperr.ErrInvalidInput, cfg.Provider)
	}
}

// validateBatch checks the returned vectors against the batch and the
// configured dimension.
func validateBatch(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: embedding provider returned %d vectors for %d inputs",
			apperr.ErrUpstreamUnavailable, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, index expects %d",
				apperr.ErrUpstreamUnavailable, i, len(v), dimension)
		}
	}
	return nil
}

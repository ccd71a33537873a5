package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
)

// TEIProvider generates dense embeddings through a text-embeddings-inference
// HTTP endpoint.
type TEIProvider struct {
	cfg    config.EmbeddingsConfig
	client *http.Client
	logger *logging.Logger
}

// NewTEIProvider creates a provider backed by a TEI server.
func NewTEIProvider(cfg config.EmbeddingsConfig, logger *logging.Logger) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: tei base_url required", apperr.ErrInvalidInput)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", apperr.ErrInvalidInput)
	}
	return &TEIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

func (p *TEIProvider) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tei request: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: tei status %d: %s", apperr.ErrUpstreamUnavailable, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding tei response: %v", apperr.ErrUpstreamUnavailable, err)
	}
	return vectors, nil
}

// EmbedDocuments embeds a batch of texts in input order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		metrics.ObserveEmbedding("tei", "embed_documents", time.Since(start).Seconds(), len(texts), embErr)
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
	if err := validateBatch(vectors, len(texts), p.cfg.Dimension); err != nil {
		embErr = err
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		metrics.ObserveEmbedding("tei", "embed_query", time.Since(start).Seconds(), 1, embErr)
	}()

	if text == "" {
		embErr = fmt.Errorf("%w: text cannot be empty", apperr.ErrInvalidInput)
		return nil, embErr
	}

	vectors, err := p.embed(ctx, text)
	if err != nil {
		embErr = err
		return nil, err
	}
	if err := validateBatch(vectors, 1, p.cfg.Dimension); err != nil {
		embErr = err
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the configured vector width.
func (p *TEIProvider) Dimension() int { return p.cfg.Dimension }

// Close is a no-op; the provider holds no persistent connections.
func (p *TEIProvider) Close() error {
	p.logger.Debug(context.Background(), "tei provider closed", zap.String("base_url", p.cfg.BaseURL))
	return nil
}

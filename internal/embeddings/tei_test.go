package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
)

func teiTestConfig(url string, dim int) config.EmbeddingsConfig {
	return config.EmbeddingsConfig{
		Provider:  "tei",
		Model:     "test-model",
		BaseURL:   url,
		Dimension: dim,
	}
}

func fakeTEI(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Inputs any `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		n := 1
		if batch, ok := req.Inputs.([]any); ok {
			n = len(batch)
		}
		vectors := make([][]float32, n)
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = float32(i + 1)
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestTEIProviderValidatesConfig(t *testing.T) {
	_, err := NewTEIProvider(teiTestConfig("", 4), logging.NewTestLogger().Logger)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = NewTEIProvider(teiTestConfig("http://localhost:8081", 0), logging.NewTestLogger().Logger)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestTEIEmbedDocuments(t *testing.T) {
	srv := fakeTEI(t, 4)
	defer srv.Close()

	p, err := NewTEIProvider(teiTestConfig(srv.URL, 4), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Len(t, v, 4)
		assert.Equal(t, float32(i+1), v[0], "batch order must be preserved")
	}
}

func TestTEIEmbedQuery(t *testing.T) {
	srv := fakeTEI(t, 4)
	defer srv.Close()

	p, err := NewTEIProvider(teiTestConfig(srv.URL, 4), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	v, err := p.EmbedQuery(context.Background(), "hamster bedding")
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestTEIEmptyInput(t *testing.T) {
	srv := fakeTEI(t, 4)
	defer srv.Close()

	p, err := NewTEIProvider(teiTestConfig(srv.URL, 4), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestTEIDimensionMismatch(t *testing.T) {
	srv := fakeTEI(t, 4)
	defer srv.Close()

	// Index expects 8 but the server returns 4-wide vectors.
	p, err := NewTEIProvider(teiTestConfig(srv.URL, 8), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestTEIUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(teiTestConfig(srv.URL, 4), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestNewProviderSelection(t *testing.T) {
	logger := logging.NewTestLogger().Logger

	p, err := NewProvider(teiTestConfig("http://localhost:8081", 1024), logger)
	require.NoError(t, err)
	assert.IsType(t, &TEIProvider{}, p)
	assert.Equal(t, 1024, p.Dimension())

	p, err = NewProvider(config.EmbeddingsConfig{
		Provider:  "openai",
		Model:     "text-embedding-3-large",
		APIKey:    "sk-test",
		Dimension: 1024,
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "cohere"}, logger)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

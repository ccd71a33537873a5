package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "docdex_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, 1024, cfg.Embeddings.Dimension)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, 50, cfg.Search.PrefetchLimit)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 2048, cfg.Ingest.ChunkSize)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9191
  shutdown_timeout: 30s
qdrant:
  host: qdrant.internal
  collection: custom_chunks
search:
  limit: 5
  prefetch_limit: 25
auth:
  admin_emails:
    - root@example.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, "custom_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.Equal(t, 25, cfg.Search.PrefetchLimit)
	assert.Equal(t, []string{"root@example.com"}, cfg.Auth.AdminEmails)
	// Unset sections keep their defaults.
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	t.Setenv("DOCDEX_SERVER_PORT", "7070")
	t.Setenv("DOCDEX_QDRANT_API_KEY", "sekrit")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Qdrant.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, false},
		{"empty qdrant collection", func(c *Config) { c.Qdrant.Collection = "" }, false},
		{"zero dimension", func(c *Config) { c.Embeddings.Dimension = 0 }, false},
		{"prefetch below limit", func(c *Config) { c.Search.PrefetchLimit = 5 }, false},
		{"overlap at chunk size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, false},
		{"gcs without bucket", func(c *Config) { c.FileStore.Backend = "gcs"; c.FileStore.Bucket = "" }, false},
		{"memory backend without bucket", func(c *Config) { c.FileStore.Backend = "memory" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("DOCDEX_SERVER_PORT"))
	assert.Equal(t, "qdrant.api_key", envTransform("DOCDEX_QDRANT_API_KEY"))
	assert.Equal(t, "embeddings.base_url", envTransform("DOCDEX_EMBEDDINGS_BASE_URL"))
	assert.Equal(t, "logging", envTransform("DOCDEX_LOGGING"))
}

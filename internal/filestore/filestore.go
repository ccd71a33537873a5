// Package filestore persists original resource bytes in object storage
// and mints short-lived download URLs for them.
package filestore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
)

// Store is the object storage surface used by the ingestion and
// retrieval paths.
type Store interface {
	// Put writes an object under key, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Presign mints a time-limited download URL for the object.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Close releases client resources.
	Close() error
}

// New creates a file store from configuration.
func New(ctx context.Context, cfg config.FileStoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "gcs", "":
		return NewGCSStore(ctx, cfg, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown file store backend %q", apperr.ErrInvalidInput, cfg.Backend)
	}
}

package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/logging"
)

// GCSStore persists objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *logging.Logger
}

// NewGCSStore creates a GCS-backed store. Credentials come from the
// configured service account file or ambient application default
// credentials.
func NewGCSStore(ctx context.Context, cfg config.FileStoreConfig, logger *logging.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket required", apperr.ErrInvalidInput)
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	logger.Info(ctx, "gcs file store ready", zap.String("bucket", cfg.Bucket))
	return &GCSStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Put writes an object, replacing previous content under the same key.
func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: writing object %q: %v", apperr.ErrUpstreamUnavailable, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: closing object writer %q: %v", apperr.ErrUpstreamUnavailable, key, err)
	}
	return nil
}

// Get opens the object for reading.
func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: object %q", apperr.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening object %q: %v", apperr.ErrUpstreamUnavailable, key, err)
	}
	return r, nil
}

// Delete removes the object; a missing object is not an error.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: deleting object %q: %v", apperr.ErrUpstreamUnavailable, key, err)
	}
	return nil
}

// Presign mints a V4 signed download URL for the object.
func (g *GCSStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("%w: signing url for %q: %v", apperr.ErrUpstreamUnavailable, key, err)
	}
	return url, nil
}

// Close releases the storage client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

var _ Store = (*GCSStore)(nil)

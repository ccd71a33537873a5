// Package ingest turns uploaded files and fetched URLs into searchable,
// indexed resources.
//
// Ordering is write-ahead-then-index: a resource's chunk rows are
// committed before any index upsert is attempted, never the reverse. The
// index call after commit is best-effort; a missed upsert leaves chunks
// unsearchable until reconciliation backfills them.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/chunker"
	"github.com/covelabs/docdex/internal/embeddings"
	"github.com/covelabs/docdex/internal/extract"
	"github.com/covelabs/docdex/internal/filestore"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
	"github.com/covelabs/docdex/internal/permissions"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/tasks"
	"github.com/covelabs/docdex/internal/vectorindex"
)

// maxFetchBytes bounds how much of a fetched URL body is read.
const maxFetchBytes = 32 << 20

// Service is the ingestion service.
type Service struct {
	store   *store.Store
	engine  *permissions.Engine
	chunker *chunker.Chunker
	dense   embeddings.Provider
	sparse  *embeddings.SparseEncoder
	index   vectorindex.Index
	files   filestore.Store
	extract *extract.Registry
	runner  *tasks.Runner
	logger  *logging.Logger

	httpClient *http.Client
	presignTTL time.Duration
}

// Options carries the collaborators the service is built from.
type Options struct {
	Store      *store.Store
	Engine     *permissions.Engine
	Chunker    *chunker.Chunker
	Dense      embeddings.Provider
	Sparse     *embeddings.SparseEncoder
	Index      vectorindex.Index
	Files      filestore.Store
	Extract    *extract.Registry
	Runner     *tasks.Runner
	Logger     *logging.Logger
	HTTPClient *http.Client
	PresignTTL time.Duration
}

// NewService creates the ingestion service.
func NewService(opts Options) *Service {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		store:      opts.Store,
		engine:     opts.Engine,
		chunker:    opts.Chunker,
		dense:      opts.Dense,
		sparse:     opts.Sparse,
		index:      opts.Index,
		files:      opts.Files,
		extract:    opts.Extract,
		runner:     opts.Runner,
		logger:     opts.Logger,
		httpClient: httpClient,
		presignTTL: ttl,
	}
}

// ObjectKey is the file store key for a resource's original bytes.
func ObjectKey(collectionID, resourceID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", collectionID, resourceID, filename)
}

// IngestFile stores the uploaded bytes, creates the Resource row and runs
// the chunk/embed/index pipeline. Requires manager rights on the
// collection.
func (s *Service) IngestFile(ctx context.Context, user *store.User, collectionID uuid.UUID, filename, contentType string, data []byte) (*store.Resource, error) {
	if err := s.engine.RequireMembership(ctx, user, collectionID, true); err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename required", apperr.ErrInvalidInput)
	}
	if !s.extract.Supported(contentType) {
		return nil, fmt.Errorf("%w: unsupported content type %q", apperr.ErrInvalidInput, contentType)
	}

	res := &store.Resource{
		CollectionID: collectionID,
		Filename:     filename,
		ContentType:  contentType,
	}
	if user != nil {
		res.CreatedByID = &user.ID
	}
	if err := s.store.CreateResource(ctx, res); err != nil {
		return nil, err
	}

	if err := s.files.Put(ctx, ObjectKey(collectionID, res.ID, filename), bytes.NewReader(data), contentType); err != nil {
		s.failResource(ctx, res, err)
		return res, err
	}

	s.process(ctx, res, "file", data)
	return res, nil
}

// IngestURL fetches the URL and runs the pipeline. Re-ingesting a URL
// already present in the collection updates the existing resource in
// place: old chunks and points are replaced, the Resource row is reused.
func (s *Service) IngestURL(ctx context.Context, user *store.User, collectionID uuid.UUID, rawURL string) (*store.Resource, error) {
	if err := s.engine.RequireMembership(ctx, user, collectionID, true); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", apperr.ErrInvalidInput, rawURL)
	}

	res, err := s.store.GetResourceByURL(ctx, collectionID, rawURL)
	switch {
	case err == nil:
		// Update in place.
	case isNotFound(err):
		res = &store.Resource{
			CollectionID: collectionID,
			Filename:     filenameFromURL(parsed),
			URL:          rawURL,
		}
		if user != nil {
			res.CreatedByID = &user.ID
		}
		if err := s.store.CreateResource(ctx, res); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	data, contentType, err := s.fetch(ctx, rawURL)
	if err != nil {
		s.failResource(ctx, res, err)
		return res, err
	}
	res.ContentType = contentType
	if !s.extract.Supported(contentType) {
		err := fmt.Errorf("%w: unsupported content type %q from %s", apperr.ErrInvalidInput, contentType, rawURL)
		s.failResource(ctx, res, err)
		return res, err
	}

	s.process(ctx, res, "url", data)
	return res, nil
}

// process extracts, chunks, embeds and commits the chunk rows, then hands
// the index upsert to the task runner. Pipeline failures are recorded on
// the resource instead of leaving half-written state unexplained.
func (s *Service) process(ctx context.Context, res *store.Resource, source string, data []byte) {
	start := time.Now()

	chunks, points, err := s.prepare(ctx, res, data)
	if err != nil {
		metrics.ObserveIngest(source, time.Since(start).Seconds(), 0, err)
		s.failResource(ctx, res, err)
		return
	}

	// Write-ahead: chunk rows commit before any index write. Replacing
	// old chunks and inserting new ones share one transaction so a
	// re-ingest never leaves a mixed chunk set.
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.store.DeleteChunksByResource(ctx, tx, res.ID); err != nil {
			return err
		}
		return s.store.CreateChunks(ctx, tx, chunks)
	})
	if err != nil {
		metrics.ObserveIngest(source, time.Since(start).Seconds(), 0, err)
		s.failResource(ctx, res, err)
		return
	}

	// Chunk IDs are assigned at insert; copy them onto the points.
	for i, c := range chunks {
		points[i].ChunkID = c.ID
		points[i].CreatedAt = c.CreatedAt
	}

	res.IsProcessed = true
	res.ProcessError = ""
	res.ProcessTime = time.Since(start)
	if err := s.store.SaveResource(ctx, res); err != nil {
		s.logger.Error(ctx, "saving processed resource", zap.String("resource_id", res.ID.String()), zap.Error(err))
	}
	metrics.ObserveIngest(source, time.Since(start).Seconds(), len(chunks), nil)

	resourceID := res.ID
	if submitErr := s.runner.Submit(func(taskCtx context.Context) {
		if err := s.index.DeleteByResource(taskCtx, resourceID); err != nil {
			s.logger.Warn(taskCtx, "clearing stale index points",
				zap.String("resource_id", resourceID.String()), zap.Error(err))
		}
		if err := s.index.Upsert(taskCtx, points); err != nil {
			s.logger.Warn(taskCtx, "index upsert failed, chunks await reconciliation",
				zap.String("resource_id", resourceID.String()),
				zap.Int("points", len(points)),
				zap.Error(err))
		}
	}); submitErr != nil {
		s.logger.Error(ctx, "submitting index task", zap.Error(submitErr))
	}
}

// prepare extracts and chunks the text and embeds every window. No rows
// are written here, so an embedding failure aborts cleanly.
func (s *Service) prepare(ctx context.Context, res *store.Resource, data []byte) ([]*store.TextChunk, []vectorindex.ChunkPoint, error) {
	text, err := s.extract.Extract(res.ContentType, data)
	if err != nil {
		return nil, nil, err
	}
	windows, err := s.chunker.Split(text)
	if err != nil {
		return nil, nil, err
	}
	if len(windows) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = w.Text
	}
	dense, err := s.dense.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, nil, err
	}

	chunks := make([]*store.TextChunk, len(windows))
	points := make([]vectorindex.ChunkPoint, len(windows))
	for i, w := range windows {
		chunks[i] = &store.TextChunk{
			ResourceID: res.ID,
			Text:       w.Text,
			Order:      w.Order,
		}
		points[i] = vectorindex.ChunkPoint{
			ResourceID:   res.ID,
			CollectionID: res.CollectionID,
			Text:         w.Text,
			Filename:     res.Filename,
			ContentType:  res.ContentType,
			Dense:        dense[i],
			Sparse:       s.sparse.Encode(w.Text),
		}
	}
	return chunks, points, nil
}

// failResource records the pipeline failure on the resource row.
func (s *Service) failResource(ctx context.Context, res *store.Resource, cause error) {
	res.IsProcessed = false
	res.ProcessError = cause.Error()
	if err := s.store.SaveResource(ctx, res); err != nil {
		s.logger.Error(ctx, "recording process error",
			zap.String("resource_id", res.ID.String()), zap.Error(err))
	}
}

// fetch downloads the URL body with a size cap.
func (s *Service) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building request for %q: %v", apperr.ErrInvalidInput, rawURL, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetching %s: %v", apperr.ErrUpstreamUnavailable, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: fetching %s: status %d", apperr.ErrUpstreamUnavailable, rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %v", apperr.ErrUpstreamUnavailable, rawURL, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	return data, contentType, nil
}

// DeleteResource removes the resource row and its chunks, then clears the
// index points and the stored file. Requires manager rights.
func (s *Service) DeleteResource(ctx context.Context, user *store.User, resourceID uuid.UUID) error {
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if err := s.engine.RequireMembership(ctx, user, res.CollectionID, true); err != nil {
		return err
	}

	if err := s.store.DeleteResource(ctx, resourceID); err != nil {
		return err
	}

	key := ObjectKey(res.CollectionID, res.ID, res.Filename)
	if submitErr := s.runner.Submit(func(taskCtx context.Context) {
		if err := s.index.DeleteByResource(taskCtx, resourceID); err != nil {
			s.logger.Warn(taskCtx, "index delete failed after resource delete",
				zap.String("resource_id", resourceID.String()), zap.Error(err))
		}
		if err := s.files.Delete(taskCtx, key); err != nil {
			s.logger.Warn(taskCtx, "file delete failed after resource delete",
				zap.String("key", key), zap.Error(err))
		}
	}); submitErr != nil {
		s.logger.Error(ctx, "submitting delete task", zap.Error(submitErr))
	}
	return nil
}

// ResourceView is a resource with its download URL resolved.
type ResourceView struct {
	store.Resource
	DownloadURL string `json:"download_url,omitempty"`
}

// GetResource returns the resource with a download URL: the original URL
// for scraped pages, a presigned file store URL otherwise.
func (s *Service) GetResource(ctx context.Context, user *store.User, resourceID uuid.UUID) (*ResourceView, error) {
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RequireMembership(ctx, user, res.CollectionID, false); err != nil {
		return nil, err
	}

	view := &ResourceView{Resource: *res}
	if res.URL != "" {
		view.DownloadURL = res.URL
		return view, nil
	}
	signed, err := s.files.Presign(ctx, ObjectKey(res.CollectionID, res.ID, res.Filename), s.presignTTL)
	if err != nil {
		s.logger.Warn(ctx, "presigning download url",
			zap.String("resource_id", res.ID.String()), zap.Error(err))
		return view, nil
	}
	view.DownloadURL = signed
	return view, nil
}

// ListResources returns the collection's resources ordered by filename.
// Requires view rights on the collection.
func (s *Service) ListResources(ctx context.Context, user *store.User, collectionID uuid.UUID, page store.Page) ([]store.Resource, int64, error) {
	if err := s.engine.RequireMembership(ctx, user, collectionID, false); err != nil {
		return nil, 0, err
	}
	return s.store.ListResourcesByCollection(ctx, collectionID, page)
}

// ListChunks returns a resource's chunks in document order.
func (s *Service) ListChunks(ctx context.Context, user *store.User, resourceID uuid.UUID, page store.Page) ([]store.TextChunk, int64, error) {
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, 0, err
	}
	if err := s.engine.RequireMembership(ctx, user, res.CollectionID, false); err != nil {
		return nil, 0, err
	}
	perms, err := s.engine.ForResource(ctx, user, res)
	if err != nil {
		return nil, 0, err
	}
	if !permissions.HasResourcePermission(perms, permissions.ResourceReadContents) {
		return nil, 0, fmt.Errorf("%w: reading chunk contents requires READ_CONTENTS", apperr.ErrForbidden)
	}
	return s.store.ListChunksByResource(ctx, resourceID, page)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}

// filenameFromURL derives a stable filename for a scraped page.
func filenameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = u.Host
	}
	return name
}

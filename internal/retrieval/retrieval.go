// Package retrieval runs hybrid search: dense and sparse branch queries
// under one collection-scoped filter, fused with reciprocal rank fusion
// and enriched with resource metadata.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/embeddings"
	"github.com/covelabs/docdex/internal/filestore"
	"github.com/covelabs/docdex/internal/ingest"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
	"github.com/covelabs/docdex/internal/permissions"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/vectorindex"
)

const instrumentationName = "github.com/covelabs/docdex/internal/retrieval"

// Document is one fused, enriched search hit.
type Document struct {
	Text     string   `json:"text"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Metadata identifies the hit's chunk and resource.
type Metadata struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	ResourceID   uuid.UUID `json:"resource_id"`
	CollectionID uuid.UUID `json:"collection_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
	// URL is the resource's original URL for scraped pages, or a
	// time-limited download URL for uploaded files.
	URL string `json:"url,omitempty"`
}

// Service is the search orchestrator.
type Service struct {
	store  *store.Store
	engine *permissions.Engine
	dense  embeddings.Provider
	sparse *embeddings.SparseEncoder
	index  vectorindex.Index
	files  filestore.Store
	cfg    config.SearchConfig
	logger *logging.Logger
	tracer trace.Tracer

	presignTTL time.Duration
}

// NewService creates the search service. The embedding providers must be
// the same instances ingestion uses; querying a different embedding space
// silently degrades relevance instead of erroring.
func NewService(st *store.Store, engine *permissions.Engine, dense embeddings.Provider, sparse *embeddings.SparseEncoder, index vectorindex.Index, files filestore.Store, cfg config.SearchConfig, presignTTL time.Duration, logger *logging.Logger) *Service {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &Service{
		store:      st,
		engine:     engine,
		dense:      dense,
		sparse:     sparse,
		index:      index,
		files:      files,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		presignTTL: presignTTL,
	}
}

// Search runs a hybrid query over one collection. The caller needs view
// rights on the collection; keywords bias ranking without excluding.
func (s *Service) Search(ctx context.Context, user *store.User, collectionID uuid.UUID, queryText string, keywords []string) ([]Document, error) {
	start := time.Now()
	var docs []Document
	var err error
	defer func() {
		metrics.ObserveSearch(time.Since(start).Seconds(), len(docs), err)
	}()

	if err = s.engine.RequireMembership(ctx, user, collectionID, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queryText) == "" {
		err = fmt.Errorf("%w: query text required", apperr.ErrInvalidInput)
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "retrieval.search",
		trace.WithAttributes(
			attribute.String("collection_id", collectionID.String()),
			attribute.Int("keywords", len(keywords)),
		))
	defer span.End()

	denseVec, err := s.dense.EmbedQuery(ctx, queryText)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	q := vectorindex.Query{
		CollectionID: collectionID,
		Dense:        denseVec,
		Sparse:       s.sparse.Encode(queryText),
		Keywords:     keywords,
		Limit:        s.cfg.PrefetchLimit,
	}

	denseHits, err := s.index.QueryDense(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	sparseHits, err := s.index.QuerySparse(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	fused := vectorindex.FuseRRF(s.cfg.RRFK, s.cfg.Limit, denseHits, sparseHits)
	docs = s.enrich(ctx, fused)
	span.SetAttributes(attribute.Int("results", len(docs)))
	return docs, nil
}

// enrich resolves each hit's resource and attaches an access URL. Hits
// whose resource was deleted between indexing and now are dropped, not
// errors: index cleanup runs after the row delete commits.
func (s *Service) enrich(ctx context.Context, hits []vectorindex.Hit) []Document {
	resources := make(map[uuid.UUID]*store.Resource, len(hits))
	urls := make(map[uuid.UUID]string, len(hits))

	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		res, ok := resources[hit.ResourceID]
		if !ok {
			var err error
			res, err = s.store.GetResource(ctx, hit.ResourceID)
			if errors.Is(err, apperr.ErrNotFound) {
				s.logger.Debug(ctx, "dropping hit for deleted resource",
					zap.String("resource_id", hit.ResourceID.String()))
				resources[hit.ResourceID] = nil
				continue
			}
			if err != nil {
				s.logger.Warn(ctx, "resource lookup failed during enrichment",
					zap.String("resource_id", hit.ResourceID.String()), zap.Error(err))
				continue
			}
			resources[hit.ResourceID] = res
			urls[hit.ResourceID] = s.accessURL(ctx, res)
		}
		if res == nil {
			continue
		}

		docs = append(docs, Document{
			Text:  hit.Text,
			Score: hit.Score,
			Metadata: Metadata{
				ChunkID:      hit.ChunkID,
				ResourceID:   hit.ResourceID,
				CollectionID: hit.CollectionID,
				Filename:     hit.Filename,
				ContentType:  hit.ContentType,
				CreatedAt:    hit.CreatedAt,
				URL:          urls[hit.ResourceID],
			},
		})
	}
	return docs
}

func (s *Service) accessURL(ctx context.Context, res *store.Resource) string {
	if res.URL != "" {
		return res.URL
	}
	signed, err := s.files.Presign(ctx, ingest.ObjectKey(res.CollectionID, res.ID, res.Filename), s.presignTTL)
	if err != nil {
		s.logger.Warn(ctx, "presigning access url",
			zap.String("resource_id", res.ID.String()), zap.Error(err))
		return ""
	}
	return signed
}

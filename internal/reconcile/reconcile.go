// Package reconcile backfills vector index points for chunks whose
// post-commit index upsert never landed. It is the documented remediation
// for the store/index pair not sharing a transaction.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/embeddings"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/vectorindex"
)

const defaultBatchSize = 200

// Report summarizes one reconciliation run.
type Report struct {
	Scanned    int `json:"scanned"`
	Missing    int `json:"missing"`
	Backfilled int `json:"backfilled"`
}

// Reconciler walks every chunk row and re-indexes the ones without a
// point.
type Reconciler struct {
	store     *store.Store
	index     vectorindex.Index
	dense     embeddings.Provider
	sparse    *embeddings.SparseEncoder
	logger    *logging.Logger
	batchSize int
}

// New creates a reconciler. batchSize <= 0 selects the default.
func New(st *store.Store, index vectorindex.Index, dense embeddings.Provider, sparse *embeddings.SparseEncoder, logger *logging.Logger, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reconciler{
		store:     st,
		index:     index,
		dense:     dense,
		sparse:    sparse,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Run scans all chunks in batches, compares against index point IDs and
// upserts the missing ones. Chunks whose resource row has vanished are
// skipped; the next resource delete already purged their points.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var report Report
	resources := make(map[uuid.UUID]*store.Resource)

	err := r.store.ScanChunks(ctx, r.batchSize, func(chunks []store.TextChunk) error {
		report.Scanned += len(chunks)

		ids := make([]uuid.UUID, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		existing, err := r.index.ExistingIDs(ctx, ids)
		if err != nil {
			return err
		}

		var points []vectorindex.ChunkPoint
		var texts []string
		var pending []store.TextChunk
		for _, c := range chunks {
			if existing[c.ID] {
				continue
			}
			report.Missing++
			pending = append(pending, c)
			texts = append(texts, c.Text)
		}
		if len(pending) == 0 {
			return nil
		}

		dense, err := r.dense.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		for i, c := range pending {
			res, err := r.resource(ctx, resources, c.ResourceID)
			if err != nil {
				return err
			}
			if res == nil {
				continue
			}
			points = append(points, vectorindex.ChunkPoint{
				ChunkID:      c.ID,
				ResourceID:   c.ResourceID,
				CollectionID: res.CollectionID,
				Text:         c.Text,
				Filename:     res.Filename,
				ContentType:  res.ContentType,
				CreatedAt:    c.CreatedAt,
				Dense:        dense[i],
				Sparse:       r.sparse.Encode(c.Text),
			})
		}
		if len(points) == 0 {
			return nil
		}
		if err := r.index.Upsert(ctx, points); err != nil {
			return err
		}
		report.Backfilled += len(points)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("reconciling chunks: %w", err)
	}

	r.logger.Info(ctx, "reconciliation complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("missing", report.Missing),
		zap.Int("backfilled", report.Backfilled),
	)
	return report, nil
}

func (r *Reconciler) resource(ctx context.Context, cache map[uuid.UUID]*store.Resource, id uuid.UUID) (*store.Resource, error) {
	if res, ok := cache[id]; ok {
		return res, nil
	}
	res, err := r.store.GetResource(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[id] = res
	return res, nil
}

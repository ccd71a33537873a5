// Package vectorindex maintains the hybrid search index: one point per
// text chunk carrying a dense and a sparse named vector plus the payload
// fields the search path filters and renders from.
package vectorindex

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/covelabs/docdex/internal/embeddings"
)

// Named vector fields on every point.
const (
	FieldDense  = "text_dense"
	FieldSparse = "text_sparse"
)

// Payload keys on every point.
const (
	PayloadText         = "text"
	PayloadCreatedAt    = "created_at"
	PayloadFilename     = "filename"
	PayloadContentType  = "content_type"
	PayloadResourceID   = "resource_id"
	PayloadCollectionID = "collection_id"
	PayloadChunkID      = "chunk_id"
)

// ChunkPoint is one chunk ready for indexing. The chunk ID doubles as the
// point ID, which makes upserts naturally idempotent.
type ChunkPoint struct {
	ChunkID      uuid.UUID
	ResourceID   uuid.UUID
	CollectionID uuid.UUID
	Text         string
	Filename     string
	ContentType  string
	CreatedAt    time.Time
	Dense        []float32
	Sparse       embeddings.SparseVector
}

// Hit is one scored point returned by a single query branch.
type Hit struct {
	ChunkID      uuid.UUID
	ResourceID   uuid.UUID
	CollectionID uuid.UUID
	Text         string
	Filename     string
	ContentType  string
	CreatedAt    time.Time
	Score        float32
}

// Query describes one branch query against the index. The filter is
// identical for both branches: collection scope is mandatory, keyword
// clauses only bias ranking.
type Query struct {
	CollectionID uuid.UUID
	Dense        []float32
	Sparse       embeddings.SparseVector
	// Keywords become should-clauses against the full-text payload index.
	Keywords []string
	// Limit is the per-branch prefetch depth.
	Limit int
}

// Index is the write and query surface of the vector index.
type Index interface {
	// EnsureSchema creates the collection, vector fields and payload
	// indexes on first run and verifies them on subsequent runs.
	EnsureSchema(ctx context.Context) error
	// Upsert writes points; re-upserting the same chunk IDs overwrites
	// in place.
	Upsert(ctx context.Context, points []ChunkPoint) error
	// DeleteByResource removes every point of a resource. Deleting a
	// resource with no points is not an error.
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
	// DeleteByCollection removes every point of a collection.
	DeleteByCollection(ctx context.Context, collectionID uuid.UUID) error
	// QueryDense runs the dense branch.
	QueryDense(ctx context.Context, q Query) ([]Hit, error)
	// QuerySparse runs the sparse branch.
	QuerySparse(ctx context.Context, q Query) ([]Hit, error)
	// ExistingIDs reports which of the given chunk IDs have points.
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	// Close releases the underlying connection.
	Close() error
}

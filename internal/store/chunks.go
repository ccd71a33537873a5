package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Keep batches small because Text is large.
const chunkBatchSize = 100

// CreateChunks inserts a resource's chunk batch. When tx is non-nil the
// insert joins the caller's transaction so the whole batch commits or
// rolls back together.
func (s *Store) CreateChunks(ctx context.Context, tx *gorm.DB, chunks []*TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = s.db
	}
	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	if err := db.WithContext(ctx).CreateInBatches(chunks, chunkBatchSize).Error; err != nil {
		s.logQueryErr(ctx, "create_chunks", err)
		return err
	}
	return nil
}

// DeleteChunksByResource removes all chunks of a resource. Safe to call
// when the resource has no chunks.
func (s *Store) DeleteChunksByResource(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) error {
	db := tx
	if db == nil {
		db = s.db
	}
	if err := db.WithContext(ctx).Where("resource_id = ?", resourceID).Delete(&TextChunk{}).Error; err != nil {
		s.logQueryErr(ctx, "delete_chunks", err)
		return err
	}
	return nil
}

// ListChunksByResource returns the page of a resource's chunks in document
// order.
func (s *Store) ListChunksByResource(ctx context.Context, resourceID uuid.UUID, page Page) ([]TextChunk, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}

	base := s.db.WithContext(ctx).Model(&TextChunk{}).Where("resource_id = ?", resourceID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		s.logQueryErr(ctx, "count_chunks", err)
		return nil, 0, err
	}

	var chunks []TextChunk
	if err := base.Order(`"order"`).Offset(page.offset()).Limit(page.Size).Find(&chunks).Error; err != nil {
		s.logQueryErr(ctx, "list_chunks", err)
		return nil, 0, err
	}
	return chunks, total, nil
}

// ChunksByResource returns every chunk of a resource in document order,
// unpaginated. Used by the indexing pipeline and reconciliation.
func (s *Store) ChunksByResource(ctx context.Context, resourceID uuid.UUID) ([]TextChunk, error) {
	var chunks []TextChunk
	if err := s.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order(`"order"`).
		Find(&chunks).Error; err != nil {
		s.logQueryErr(ctx, "chunks_by_resource", err)
		return nil, err
	}
	return chunks, nil
}

// ScanChunks walks every chunk in the store in fixed-size batches, calling
// fn with each batch. The reconciliation routine uses this to compare the
// relational rows against the index without loading the whole table.
func (s *Store) ScanChunks(ctx context.Context, batchSize int, fn func(chunks []TextChunk) error) error {
	var batch []TextChunk
	return s.db.WithContext(ctx).
		Order("id").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}

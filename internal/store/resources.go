package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/covelabs/docdex/internal/apperr"
)

// CreateResource inserts a resource row.
func (s *Store) CreateResource(ctx context.Context, r *Resource) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logQueryErr(ctx, "create_resource", err)
		return err
	}
	return nil
}

// GetResource fetches a resource by ID.
func (s *Store) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	var r Resource
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_resource", err)
		return nil, err
	}
	return &r, nil
}

// GetResourceByURL finds the resource a URL was previously ingested as
// within a collection. Used as the dedup key for re-scrapes.
func (s *Store) GetResourceByURL(ctx context.Context, collectionID uuid.UUID, url string) (*Resource, error) {
	var r Resource
	err := s.db.WithContext(ctx).
		First(&r, "collection_id = ? AND url = ?", collectionID, url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: resource for url %q", apperr.ErrNotFound, url)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_resource_by_url", err)
		return nil, err
	}
	return &r, nil
}

// SaveResource persists all mutable resource fields.
func (s *Store) SaveResource(ctx context.Context, r *Resource) error {
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.logQueryErr(ctx, "save_resource", err)
		return err
	}
	return nil
}

// DeleteResource removes the resource and its chunks in one transaction.
// Vector points and the stored file are the caller's responsibility.
func (s *Store) DeleteResource(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("resource_id = ?", id).Delete(&TextChunk{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Resource{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
		}
		return nil
	})
}

// ListResourcesByCollection returns the page of a collection's resources
// ordered by filename.
func (s *Store) ListResourcesByCollection(ctx context.Context, collectionID uuid.UUID, page Page) ([]Resource, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}

	base := s.db.WithContext(ctx).Model(&Resource{}).Where("collection_id = ?", collectionID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		s.logQueryErr(ctx, "count_resources", err)
		return nil, 0, err
	}

	var resources []Resource
	if err := base.Order("filename").Offset(page.offset()).Limit(page.Size).Find(&resources).Error; err != nil {
		s.logQueryErr(ctx, "list_resources", err)
		return nil, 0, err
	}
	return resources, total, nil
}

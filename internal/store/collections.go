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

// CreateCollection inserts a collection, failing with ErrDuplicateItem when
// the name is taken.
func (s *Store) CreateCollection(ctx context.Context, c *Collection) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Collection{}).Where("name = ?", c.Name).Count(&count).Error; err != nil {
		s.logQueryErr(ctx, "count_collection_name", err)
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: collection name %q", apperr.ErrDuplicateItem, c.Name)
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		s.logQueryErr(ctx, "create_collection", err)
		return err
	}
	return nil
}

// GetCollection fetches a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id uuid.UUID) (*Collection, error) {
	var c Collection
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: collection %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_collection", err)
		return nil, err
	}
	return &c, nil
}

// UpdateCollection persists name, description, and custom prompt changes.
func (s *Store) UpdateCollection(ctx context.Context, c *Collection) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Collection{}).
		Where("name = ? AND id <> ?", c.Name, c.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: collection name %q", apperr.ErrDuplicateItem, c.Name)
	}
	if err := s.db.WithContext(ctx).Model(c).Select("name", "description", "custom_prompt").Updates(c).Error; err != nil {
		s.logQueryErr(ctx, "update_collection", err)
		return err
	}
	return nil
}

// DeleteCollection removes the collection, its memberships, its resources,
// and their chunks in one transaction. Vector points and stored files are
// the caller's responsibility.
func (s *Store) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var resourceIDs []uuid.UUID
		if err := tx.Model(&Resource{}).Where("collection_id = ?", id).Pluck("id", &resourceIDs).Error; err != nil {
			return err
		}
		if len(resourceIDs) > 0 {
			if err := tx.Where("resource_id IN ?", resourceIDs).Delete(&TextChunk{}).Error; err != nil {
				return err
			}
			if err := tx.Where("collection_id = ?", id).Delete(&Resource{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("collection_id = ?", id).Delete(&UserCollection{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Collection{}, "id = ?", id).Error
	})
}

// ListCollectionsForUser returns the page of collections the user belongs
// to, ordered by name. Admins see every collection.
func (s *Store) ListCollectionsForUser(ctx context.Context, user *User, admin bool, page Page) ([]Collection, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&Collection{})
	if !admin {
		q = q.Joins(`JOIN user_collection ON user_collection.collection_id = "collection".id`).
			Where("user_collection.user_id = ?", user.ID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		s.logQueryErr(ctx, "count_collections", err)
		return nil, 0, err
	}

	var collections []Collection
	if err := q.Order(`"collection".name`).Offset(page.offset()).Limit(page.Size).Find(&collections).Error; err != nil {
		s.logQueryErr(ctx, "list_collections", err)
		return nil, 0, err
	}
	return collections, total, nil
}

// GetMembership fetches the membership row for (user, collection), or
// ErrNotFound when the user has no role on the collection.
func (s *Store) GetMembership(ctx context.Context, userID, collectionID uuid.UUID) (*UserCollection, error) {
	var uc UserCollection
	err := s.db.WithContext(ctx).
		First(&uc, "user_id = ? AND collection_id = ?", userID, collectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: membership (%s, %s)", apperr.ErrNotFound, userID, collectionID)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_membership", err)
		return nil, err
	}
	return &uc, nil
}

// UpsertMembership grants a role, updating it in place when the user is
// already a member.
func (s *Store) UpsertMembership(ctx context.Context, userID, collectionID uuid.UUID, role Role) (*UserCollection, error) {
	uc, err := s.GetMembership(ctx, userID, collectionID)
	if err == nil {
		uc.Role = role
		if err := s.db.WithContext(ctx).
			Model(&UserCollection{}).
			Where("user_id = ? AND collection_id = ?", userID, collectionID).
			Update("role", role).Error; err != nil {
			return nil, err
		}
		return uc, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	uc = &UserCollection{
		UserID:       userID,
		CollectionID: collectionID,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(uc).Error; err != nil {
		s.logQueryErr(ctx, "create_membership", err)
		return nil, err
	}
	return uc, nil
}

// DeleteMembership revokes a user's role on a collection.
func (s *Store) DeleteMembership(ctx context.Context, userID, collectionID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND collection_id = ?", userID, collectionID).
		Delete(&UserCollection{})
	if res.Error != nil {
		s.logQueryErr(ctx, "delete_membership", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: membership (%s, %s)", apperr.ErrNotFound, userID, collectionID)
	}
	return nil
}

// ListMemberships returns the page of a collection's memberships with user
// emails, ordered by email.
func (s *Store) ListMemberships(ctx context.Context, collectionID uuid.UUID, page Page) ([]MembershipWithEmail, int64, error) {
	if err := page.Validate(); err != nil {
		return nil, 0, err
	}

	base := s.db.WithContext(ctx).Model(&UserCollection{}).
		Where("user_collection.collection_id = ?", collectionID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		s.logQueryErr(ctx, "count_memberships", err)
		return nil, 0, err
	}

	var rows []MembershipWithEmail
	if err := base.
		Select(`user_collection.user_id, user_collection.collection_id, user_collection.role, user_collection.created_at, "user".email AS user_email`).
		Joins(`JOIN "user" ON "user".id = user_collection.user_id`).
		Order(`"user".email`).
		Offset(page.offset()).Limit(page.Size).
		Scan(&rows).Error; err != nil {
		s.logQueryErr(ctx, "list_memberships", err)
		return nil, 0, err
	}
	return rows, total, nil
}

// Package collections manages collections and their memberships:
// creation, updates, cascading deletion and role grants.
package collections

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/filestore"
	"github.com/covelabs/docdex/internal/ingest"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/permissions"
	"github.com/covelabs/docdex/internal/store"
	"github.com/covelabs/docdex/internal/tasks"
	"github.com/covelabs/docdex/internal/vectorindex"
)

var namePattern = regexp.MustCompile(`^[\w-]{3,36}$`)

// Service manages collections and memberships.
type Service struct {
	store  *store.Store
	engine *permissions.Engine
	index  vectorindex.Index
	files  filestore.Store
	runner *tasks.Runner
	logger *logging.Logger
}

// NewService creates the collections service.
func NewService(st *store.Store, engine *permissions.Engine, index vectorindex.Index, files filestore.Store, runner *tasks.Runner, logger *logging.Logger) *Service {
	return &Service{
		store:  st,
		engine: engine,
		index:  index,
		files:  files,
		runner: runner,
		logger: logger,
	}
}

// CollectionView is a collection annotated with the caller's permissions.
type CollectionView struct {
	store.Collection
	Permissions []permissions.CollectionPermission `json:"permissions"`
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match [\\w-]{3,36}, got %q", apperr.ErrInvalidInput, name)
	}
	return nil
}

// Create creates a collection. Platform admins only; the creator gets a
// manager membership so their access survives losing admin status.
func (s *Service) Create(ctx context.Context, user *store.User, name, description, customPrompt string) (*CollectionView, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: no caller identity", apperr.ErrUnauthorized)
	}
	if !s.engine.IsPlatformAdmin(user) {
		return nil, fmt.Errorf("%w: creating collections requires platform admin", apperr.ErrForbidden)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	col := &store.Collection{
		Name:         name,
		Description:  description,
		CustomPrompt: customPrompt,
	}
	if err := s.store.CreateCollection(ctx, col); err != nil {
		return nil, err
	}
	if _, err := s.store.UpsertMembership(ctx, user.ID, col.ID, store.RoleManager); err != nil {
		return nil, err
	}

	perms, err := s.engine.ForCollection(ctx, user, col.ID)
	if err != nil {
		return nil, err
	}
	return &CollectionView{Collection: *col, Permissions: perms}, nil
}

// Get returns a collection the caller can view.
func (s *Service) Get(ctx context.Context, user *store.User, id uuid.UUID) (*CollectionView, error) {
	if err := s.engine.RequireMembership(ctx, user, id, false); err != nil {
		return nil, err
	}
	col, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.engine.ForCollection(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return &CollectionView{Collection: *col, Permissions: perms}, nil
}

// UpdateInput carries the updatable collection fields. Nil pointers leave
// the field unchanged.
type UpdateInput struct {
	Name         *string
	Description  *string
	CustomPrompt *string
}

// Update modifies a collection. Requires manager rights.
func (s *Service) Update(ctx context.Context, user *store.User, id uuid.UUID, in UpdateInput) (*CollectionView, error) {
	if err := s.engine.RequireMembership(ctx, user, id, true); err != nil {
		return nil, err
	}
	col, err := s.store.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := validateName(*in.Name); err != nil {
			return nil, err
		}
		col.Name = *in.Name
	}
	if in.Description != nil {
		col.Description = *in.Description
	}
	if in.CustomPrompt != nil {
		col.CustomPrompt = *in.CustomPrompt
	}
	if err := s.store.UpdateCollection(ctx, col); err != nil {
		return nil, err
	}
	perms, err := s.engine.ForCollection(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return &CollectionView{Collection: *col, Permissions: perms}, nil
}

// Delete removes a collection with everything it owns: resource and
// chunk rows in one transaction, then index points and stored files
// best-effort after commit. Requires manager rights.
func (s *Service) Delete(ctx context.Context, user *store.User, id uuid.UUID) error {
	if err := s.engine.RequireMembership(ctx, user, id, true); err != nil {
		return err
	}

	// Snapshot the file keys before the rows disappear.
	var keys []string
	page := store.Page{Number: 1, Size: 100}
	for {
		resources, total, err := s.store.ListResourcesByCollection(ctx, id, page)
		if err != nil {
			return err
		}
		for _, res := range resources {
			if res.URL == "" {
				keys = append(keys, ingest.ObjectKey(res.CollectionID, res.ID, res.Filename))
			}
		}
		if int64(page.Number*page.Size) >= total {
			break
		}
		page.Number++
	}

	if err := s.store.DeleteCollection(ctx, id); err != nil {
		return err
	}

	if submitErr := s.runner.Submit(func(taskCtx context.Context) {
		if err := s.index.DeleteByCollection(taskCtx, id); err != nil {
			s.logger.Warn(taskCtx, "index purge failed after collection delete",
				zap.String("collection_id", id.String()), zap.Error(err))
		}
		for _, key := range keys {
			if err := s.files.Delete(taskCtx, key); err != nil {
				s.logger.Warn(taskCtx, "file delete failed after collection delete",
					zap.String("key", key), zap.Error(err))
			}
		}
	}); submitErr != nil {
		s.logger.Error(ctx, "submitting collection purge task", zap.Error(submitErr))
	}
	return nil
}

// List returns the collections the caller belongs to, or all collections
// for platform admins, each annotated with the caller's permission set.
func (s *Service) List(ctx context.Context, user *store.User, page store.Page) ([]CollectionView, int64, error) {
	if user == nil {
		return nil, 0, fmt.Errorf("%w: no caller identity", apperr.ErrUnauthorized)
	}
	admin := s.engine.IsPlatformAdmin(user)
	cols, total, err := s.store.ListCollectionsForUser(ctx, user, admin, page)
	if err != nil {
		return nil, 0, err
	}

	views := make([]CollectionView, len(cols))
	for i, col := range cols {
		perms, err := s.engine.ForCollection(ctx, user, col.ID)
		if err != nil {
			return nil, 0, err
		}
		views[i] = CollectionView{Collection: col, Permissions: perms}
	}
	return views, total, nil
}

// GrantRole gives a user, looked up or created by email, a role on the
// collection. Granting to an existing member updates the role in place.
// Requires manager rights.
func (s *Service) GrantRole(ctx context.Context, user *store.User, collectionID uuid.UUID, email string, role store.Role) (*store.UserCollection, error) {
	if err := s.engine.RequireMembership(ctx, user, collectionID, true); err != nil {
		return nil, err
	}
	if role != store.RoleManager && role != store.RoleMember {
		return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, role)
	}

	grantee, err := s.store.GetOrCreateUserByEmail(ctx, email, false)
	if err != nil {
		return nil, err
	}
	return s.store.UpsertMembership(ctx, grantee.ID, collectionID, role)
}

// RevokeRole removes a user's membership. Requires manager rights.
func (s *Service) RevokeRole(ctx context.Context, user *store.User, collectionID, userID uuid.UUID) error {
	if err := s.engine.RequireMembership(ctx, user, collectionID, true); err != nil {
		return err
	}
	return s.store.DeleteMembership(ctx, userID, collectionID)
}

// ListRoles returns the collection's memberships with user emails.
// Requires manager rights.
func (s *Service) ListRoles(ctx context.Context, user *store.User, collectionID uuid.UUID, page store.Page) ([]store.MembershipWithEmail, int64, error) {
	if err := s.engine.RequireMembership(ctx, user, collectionID, true); err != nil {
		return nil, 0, err
	}
	return s.store.ListMemberships(ctx, collectionID, page)
}

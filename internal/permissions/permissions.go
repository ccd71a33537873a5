// Package permissions computes the permissions a user holds over
// collections and resources.
//
// One canonical mapping from (role, admin) to permission set serves every
// caller; services never union permission constants ad hoc.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/covelabs/docdex/internal/apperr"
	"github.com/covelabs/docdex/internal/store"
)

// CollectionPermission is a permission over a collection.
type CollectionPermission string

const (
	CollectionView            CollectionPermission = "VIEW"
	CollectionEdit            CollectionPermission = "EDIT"
	CollectionDelete          CollectionPermission = "DELETE"
	CollectionManageUsers     CollectionPermission = "MANAGE_USERS"
	CollectionManageResources CollectionPermission = "MANAGE_RESOURCES"
)

// ResourcePermission is a permission over a resource.
type ResourcePermission string

const (
	ResourceView         ResourcePermission = "VIEW"
	ResourceReadContents ResourcePermission = "READ_CONTENTS"
	ResourceDelete       ResourcePermission = "DELETE"
)

var fullCollectionSet = []CollectionPermission{
	CollectionView,
	CollectionEdit,
	CollectionDelete,
	CollectionManageUsers,
	CollectionManageResources,
}

var fullResourceSet = []ResourcePermission{
	ResourceView,
	ResourceReadContents,
	ResourceDelete,
}

// CollectionPermissionsForRole maps (role, admin) to a collection
// permission set. Pure function; the single source of truth.
func CollectionPermissionsForRole(role store.Role, admin bool) []CollectionPermission {
	if admin {
		return fullCollectionSet
	}
	switch role {
	case store.RoleManager:
		return fullCollectionSet
	case store.RoleMember:
		return []CollectionPermission{CollectionView}
	default:
		return nil
	}
}

// ResourcePermissionsForRole maps (role, admin) to a resource permission
// set. Members may view and read resource contents but not delete.
func ResourcePermissionsForRole(role store.Role, admin bool) []ResourcePermission {
	if admin {
		return fullResourceSet
	}
	switch role {
	case store.RoleManager:
		return fullResourceSet
	case store.RoleMember:
		return []ResourcePermission{ResourceView, ResourceReadContents}
	default:
		return nil
	}
}

// HasCollectionPermission reports whether perm is in set.
func HasCollectionPermission(set []CollectionPermission, perm CollectionPermission) bool {
	for _, p := range set {
		if p == perm {
			return true
		}
	}
	return false
}

// HasResourcePermission reports whether perm is in set.
func HasResourcePermission(set []ResourcePermission, perm ResourcePermission) bool {
	for _, p := range set {
		if p == perm {
			return true
		}
	}
	return false
}

// Engine resolves permission sets using the metadata store for membership
// lookups. Engine itself is stateless.
type Engine struct {
	store       *store.Store
	adminEmails map[string]struct{}
}

// NewEngine creates a permission engine. adminEmails is the configured
// platform admin allow-list, matched case-insensitively.
func NewEngine(st *store.Store, adminEmails []string) *Engine {
	allow := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			allow[email] = struct{}{}
		}
	}
	return &Engine{store: st, adminEmails: allow}
}

// IsPlatformAdmin reports whether the user bypasses per-collection roles.
func (e *Engine) IsPlatformAdmin(user *store.User) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}
	_, ok := e.adminEmails[strings.ToLower(user.Email)]
	return ok
}

// roleFor returns the user's role on a collection, or "" without error
// when the user has no membership.
func (e *Engine) roleFor(ctx context.Context, user *store.User, collectionID uuid.UUID) (store.Role, error) {
	uc, err := e.store.GetMembership(ctx, user.ID, collectionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return uc.Role, nil
}

// ForCollection computes the user's permission set over a collection.
// No membership yields the empty set, not an error.
func (e *Engine) ForCollection(ctx context.Context, user *store.User, collectionID uuid.UUID) ([]CollectionPermission, error) {
	if user == nil {
		return nil, nil
	}
	if e.IsPlatformAdmin(user) {
		return CollectionPermissionsForRole("", true), nil
	}
	role, err := e.roleFor(ctx, user, collectionID)
	if err != nil {
		return nil, err
	}
	return CollectionPermissionsForRole(role, false), nil
}

// ForResource computes the user's permission set over a resource, derived
// from the user's role on the owning collection.
func (e *Engine) ForResource(ctx context.Context, user *store.User, resource *store.Resource) ([]ResourcePermission, error) {
	if user == nil || resource == nil {
		return nil, nil
	}
	if e.IsPlatformAdmin(user) {
		return ResourcePermissionsForRole("", true), nil
	}
	role, err := e.roleFor(ctx, user, resource.CollectionID)
	if err != nil {
		return nil, err
	}
	return ResourcePermissionsForRole(role, false), nil
}

// RequireMembership is the single gate in front of every mutating or
// resource-listing operation.
//
// It fails with ErrUnauthorized when user is nil, ErrNotFound when the
// collection does not exist, and ErrForbidden when the user has no
// membership, or is a plain member while requireManager is set. Platform
// admins always pass.
func (e *Engine) RequireMembership(ctx context.Context, user *store.User, collectionID uuid.UUID, requireManager bool) error {
	if user == nil {
		return fmt.Errorf("%w: no caller identity", apperr.ErrUnauthorized)
	}
	if _, err := e.store.GetCollection(ctx, collectionID); err != nil {
		return err
	}
	if e.IsPlatformAdmin(user) {
		return nil
	}
	role, err := e.roleFor(ctx, user, collectionID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: user %s has no role on collection %s", apperr.ErrForbidden, user.ID, collectionID)
	}
	if requireManager && role != store.RoleManager {
		return fmt.Errorf("%w: manager role required on collection %s", apperr.ErrForbidden, collectionID)
	}
	return nil
}

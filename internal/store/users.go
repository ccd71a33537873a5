package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/covelabs/docdex/internal/apperr"
)

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_user", err)
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail fetches a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "email = ?", strings.ToLower(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}
	if err != nil {
		s.logQueryErr(ctx, "get_user_by_email", err)
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUserByEmail returns the user with the given email, creating
// the row on first sight. Used on first authenticated request and when a
// manager grants a role to an email not seen before.
func (s *Store) GetOrCreateUserByEmail(ctx context.Context, email string, isAdmin bool) (*User, error) {
	email = strings.ToLower(email)
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	user = &User{
		ID:        uuid.New(),
		Email:     email,
		IsAdmin:   isAdmin,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		s.logQueryErr(ctx, "create_user", err)
		return nil, err
	}
	return user, nil
}

// Package store provides typed access to the relational metadata entities.
//
// Deletes cascade explicitly in code rather than relying on database
// triggers, so the index cleanup that follows a delete is visible at the
// call site. Foreign key constraints still back the same rules in postgres.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Role is a collection-scoped role.
type Role string

const (
	// RoleManager grants full collection permissions.
	RoleManager Role = "manager"
	// RoleMember grants view-only access.
	RoleMember Role = "member"
)

// User is a platform account, created on first successful authentication.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string { return "user" }

// Collection is a named, access-controlled group of resources.
type Collection struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null" json:"name"`
	Description  string    `json:"description"`
	CustomPrompt string    `json:"custom_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Collection) TableName() string { return "collection" }

// UserCollection joins a user to a collection with a role.
type UserCollection struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	CollectionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"collection_id"`
	Role         Role      `gorm:"not null;default:member" json:"role"`
	CreatedAt    time.Time `json:"created_at"`

	User       *User       `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Collection *Collection `gorm:"constraint:OnDelete:CASCADE;foreignKey:CollectionID;references:ID" json:"-"`
}

func (UserCollection) TableName() string { return "user_collection" }

// Resource is one ingested document: an uploaded file or a scraped URL.
type Resource struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CollectionID uuid.UUID  `gorm:"type:uuid;index;not null" json:"collection_id"`
	Filename     string     `gorm:"not null" json:"filename"`
	ContentType  string     `json:"content_type"`
	URL          string     `gorm:"index" json:"url,omitempty"`
	CreatedByID  *uuid.UUID `gorm:"type:uuid" json:"created_by_id,omitempty"`
	IsProcessed  bool       `gorm:"not null;default:false" json:"is_processed"`
	ProcessError string     `json:"process_error,omitempty"`
	ProcessTime  time.Duration `json:"process_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	Collection *Collection `gorm:"constraint:OnDelete:CASCADE;foreignKey:CollectionID;references:ID" json:"-"`
	CreatedBy  *User       `gorm:"constraint:OnDelete:SET NULL;foreignKey:CreatedByID;references:ID" json:"-"`
}

func (Resource) TableName() string { return "resource" }

// TextChunk is one overlapping window of a resource's extracted text.
// The ordered sequence of a resource's chunks reconstructs the document.
type TextChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID uuid.UUID `gorm:"type:uuid;index;not null" json:"resource_id"`
	Text       string    `gorm:"not null" json:"text"`
	Order      int       `gorm:"column:order;not null" json:"order"`
	CreatedAt  time.Time `json:"created_at"`

	Resource *Resource `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResourceID;references:ID" json:"-"`
}

func (TextChunk) TableName() string { return "text_chunk" }

// MembershipWithEmail is a membership row joined with the user's email,
// as returned by role listings.
type MembershipWithEmail struct {
	UserID       uuid.UUID `json:"user_id"`
	CollectionID uuid.UUID `json:"collection_id"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UserEmail    string    `json:"user_email"`
}

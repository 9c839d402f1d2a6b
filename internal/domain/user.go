package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role names carried in tokens and stored on users.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

type User struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	PasswordHash string // argon2id
	Name         string
	Role         string // "admin", "member", or "viewer"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type APIKey struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Name       string
	KeyHash    string // SHA-256
	Prefix     string // "evd_" plus 8 hex chars, indexed for lookup
	Scopes     []string
	LastUsedAt *time.Time // nullable
	ExpiresAt  *time.Time // nullable
	CreatedAt  time.Time
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, tenantID uuid.UUID) ([]*User, error)

	// API keys
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID, userID uuid.UUID) ([]*APIKey, error)
	DeleteAPIKey(ctx context.Context, tenantID, id uuid.UUID) error
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

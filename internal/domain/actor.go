package domain

import "github.com/google/uuid"

// Authentication methods recorded as attestation_method on sealed evidence.
const (
	AuthMethodSession = "SESSION_JWT"
	AuthMethodAPIKey  = "API_KEY"
)

// Actor is the authenticated identity behind a request. It is built from the
// verified session only; request bodies never contribute to it.
type Actor struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Email      string
	Role       string
	AuthMethod string
}

// CanWrite reports whether the actor may mutate evidence.
func (a Actor) CanWrite() bool {
	return a.Role == RoleAdmin || a.Role == RoleMember
}

// ActorType is the audit actor type for this identity.
func (a Actor) ActorType() string {
	if a.AuthMethod == AuthMethodAPIKey {
		return "api_key"
	}
	return "user"
}

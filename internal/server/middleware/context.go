package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type contextKey string

const (
	ContextKeyTenantID   contextKey = "tenant_id"
	ContextKeyUserID     contextKey = "user_id"
	ContextKeyUserRole   contextKey = "role"
	ContextKeyEmail      contextKey = "email"
	ContextKeyAuthMethod contextKey = "auth_method"
)

func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyTenantID).(uuid.UUID)
	return v, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}

// ActorFromContext assembles the authenticated actor. It reports false when
// the request carries no tenant or user.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok || tenantID == uuid.Nil {
		return domain.Actor{}, false
	}
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return domain.Actor{}, false
	}

	role, _ := RoleFromContext(ctx)
	email, _ := ctx.Value(ContextKeyEmail).(string)
	method, _ := ctx.Value(ContextKeyAuthMethod).(string)

	return domain.Actor{
		TenantID:   tenantID,
		UserID:     userID,
		Email:      email,
		Role:       role,
		AuthMethod: method,
	}, true
}

// WithActor stores an actor in ctx the same way Auth does.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	ctx = context.WithValue(ctx, ContextKeyTenantID, a.TenantID)
	ctx = context.WithValue(ctx, ContextKeyUserID, a.UserID)
	ctx = context.WithValue(ctx, ContextKeyUserRole, a.Role)
	ctx = context.WithValue(ctx, ContextKeyEmail, a.Email)
	ctx = context.WithValue(ctx, ContextKeyAuthMethod, a.AuthMethod)
	return ctx
}

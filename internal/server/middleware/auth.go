package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
)

const (
	apiKeyPrefix    = "evd_"
	apiKeyPrefixLen = 12
)

type jwtClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tid"`
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
}

// Auth authenticates the request from a Bearer access token or an X-API-Key
// header and stores the resulting identity in the context.
func Auth(jwtSecret string, userRepo domain.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try Bearer token first.
			if tok := extractBearer(r); tok != "" {
				if actor, ok := authenticateJWT(tok, jwtSecret); ok {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}

			if key := r.Header.Get("X-API-Key"); key != "" {
				if actor, ok := authenticateAPIKey(r.Context(), key, userRepo); ok {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
					return
				}
			}

			writeProblem(w, r, http.StatusUnauthorized, "", "missing or invalid credentials")
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

func authenticateJWT(tokenStr, secret string) (domain.Actor, bool) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, false
	}

	// Refresh tokens only work against /auth/refresh.
	if claims.TokenType != "" && claims.TokenType != "access" {
		return domain.Actor{}, false
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return domain.Actor{}, false
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return domain.Actor{}, false
	}

	return domain.Actor{
		TenantID:   tenantID,
		UserID:     userID,
		Email:      claims.Email,
		Role:       claims.Role,
		AuthMethod: domain.AuthMethodSession,
	}, true
}

func authenticateAPIKey(ctx context.Context, rawKey string, userRepo domain.UserRepository) (domain.Actor, bool) {
	if len(rawKey) < apiKeyPrefixLen || !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return domain.Actor{}, false
	}
	prefix := rawKey[:apiKeyPrefixLen]

	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	// No tenant context yet: uuid.Nil searches every tenant and the hash decides.
	apiKey, err := userRepo.GetAPIKeyByPrefix(ctx, uuid.Nil, prefix)
	if err != nil {
		return domain.Actor{}, false
	}

	if apiKey.KeyHash != keyHash {
		return domain.Actor{}, false
	}

	if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(time.Now()) {
		return domain.Actor{}, false
	}

	user, err := userRepo.GetByID(ctx, apiKey.TenantID, apiKey.UserID)
	if err != nil {
		return domain.Actor{}, false
	}

	// Fire and forget.
	if updateErr := userRepo.UpdateAPIKeyLastUsed(ctx, apiKey.ID); updateErr != nil {
		log.Warn().Err(updateErr).Str("api_key_id", apiKey.ID.String()).Msg("auth: failed to update api key last_used_at")
	}

	return domain.Actor{
		TenantID:   apiKey.TenantID,
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		AuthMethod: domain.AuthMethodAPIKey,
	}, true
}

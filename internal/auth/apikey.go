package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
)

// ErrInvalidAPIKey is returned when an API key is not found or the hash does not match.
var ErrInvalidAPIKey = errors.New("auth: invalid API key")

const (
	// APIKeyPrefix marks every key issued by this service.
	APIKeyPrefix = "evd_"

	apiKeyRandLen   = 20 // 20 bytes = 40 hex chars
	apiKeyPrefixLen = 12 // "evd_" + 8 hex chars, used for lookup
)

// HashAPIKey returns the stored form of a raw API key.
func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// APIKeyLookupPrefix returns the indexed prefix of a raw key, or "" if the
// key is malformed.
func APIKeyLookupPrefix(rawKey string) string {
	if len(rawKey) < apiKeyPrefixLen || !strings.HasPrefix(rawKey, APIKeyPrefix) {
		return ""
	}
	return rawKey[:apiKeyPrefixLen]
}

// GenerateAPIKey creates a new API key, stores the SHA-256 hash, and returns
// the raw key (shown to the user once). Key format: "evd_" + 40 random hex chars.
func (s *Service) GenerateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	raw := make([]byte, apiKeyRandLen)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	rawKey := APIKeyPrefix + hex.EncodeToString(raw)

	key := &domain.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		Name:      name,
		KeyHash:   HashAPIKey(rawKey),
		Prefix:    rawKey[:apiKeyPrefixLen],
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.userRepo.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	return rawKey, key, nil
}

// ValidateAPIKey checks an API key by looking up its prefix and comparing the
// SHA-256 hash. Returns the associated user and API key record.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (*domain.User, *domain.APIKey, error) {
	prefix := APIKeyLookupPrefix(rawKey)
	if prefix == "" {
		return nil, nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	// uuid.Nil searches across all tenants; the key itself names its tenant.
	apiKey, err := s.userRepo.GetAPIKeyByPrefix(ctx, uuid.Nil, prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	if apiKey.KeyHash != HashAPIKey(rawKey) {
		return nil, nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(time.Now()) {
		return nil, nil, fmt.Errorf("auth.ValidateAPIKey: key expired: %w", ErrInvalidAPIKey)
	}

	user, err := s.userRepo.GetByID(ctx, apiKey.TenantID, apiKey.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.ValidateAPIKey: %w", err)
	}

	// Fire and forget.
	if updateErr := s.userRepo.UpdateAPIKeyLastUsed(ctx, apiKey.ID); updateErr != nil {
		log.Warn().Err(updateErr).Str("api_key_id", apiKey.ID.String()).Msg("auth.ValidateAPIKey: failed to update last_used_at")
	}

	return user, apiKey, nil
}

// ListAPIKeys returns the keys a user owns within a tenant.
func (s *Service) ListAPIKeys(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error) {
	keys, err := s.userRepo.ListAPIKeys(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.ListAPIKeys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey deletes a key in the tenant.
func (s *Service) RevokeAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.userRepo.DeleteAPIKey(ctx, tenantID, id); err != nil {
		return fmt.Errorf("auth.RevokeAPIKey: %w", err)
	}
	return nil
}

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/domain"
)

func TestAPIKeyLookupPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "evd_0123456789abcdef", want: "evd_01234567"},
		{raw: "evd_0123", want: ""},
		{raw: "evk_0123456789abcdef", want: ""},
		{raw: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, auth.APIKeyLookupPrefix(tc.raw))
		})
	}
}

func TestGenerateAndValidateAPIKey(t *testing.T) {
	t.Parallel()

	repo := newMemUserRepo()
	svc := newTestService(repo)
	tenantID := uuid.New()

	user, err := svc.Register(t.Context(), tenantID, "erp@acme.example", "pw", "ERP bot")
	require.NoError(t, err)

	raw, key, err := svc.GenerateAPIKey(t.Context(), tenantID, user.ID, "erp-sync", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, auth.APIKeyPrefix))
	assert.Len(t, raw, len(auth.APIKeyPrefix)+40)
	assert.Equal(t, raw[:12], key.Prefix)
	assert.Equal(t, auth.HashAPIKey(raw), key.KeyHash)
	assert.NotContains(t, key.KeyHash, raw)

	t.Run("valid key resolves the user", func(t *testing.T) {
		gotUser, gotKey, err := svc.ValidateAPIKey(t.Context(), raw)
		require.NoError(t, err)
		assert.Equal(t, user.ID, gotUser.ID)
		assert.Equal(t, key.ID, gotKey.ID)
		assert.Equal(t, 1, repo.lastUsed)
	})

	t.Run("tampered key", func(t *testing.T) {
		_, _, err := svc.ValidateAPIKey(t.Context(), raw[:len(raw)-1]+"x")
		assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	})

	t.Run("malformed key", func(t *testing.T) {
		_, _, err := svc.ValidateAPIKey(t.Context(), "short")
		assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	})

	t.Run("list and revoke", func(t *testing.T) {
		keys, err := svc.ListAPIKeys(t.Context(), tenantID, user.ID)
		require.NoError(t, err)
		require.Len(t, keys, 1)

		require.ErrorIs(t, svc.RevokeAPIKey(t.Context(), uuid.New(), key.ID), domain.ErrNotFound)
		require.NoError(t, svc.RevokeAPIKey(t.Context(), tenantID, key.ID))

		_, _, err = svc.ValidateAPIKey(t.Context(), raw)
		assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
	})
}

func TestValidateAPIKey_Expired(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemUserRepo())
	tenantID := uuid.New()
	user, err := svc.Register(t.Context(), tenantID, "old@acme.example", "pw", "Old")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	raw, _, err := svc.GenerateAPIKey(t.Context(), tenantID, user.ID, "stale", &past)
	require.NoError(t, err)

	_, _, err = svc.ValidateAPIKey(t.Context(), raw)
	assert.ErrorIs(t, err, auth.ErrInvalidAPIKey)
}

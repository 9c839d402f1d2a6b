package redis_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	redisstore "github.com/gosuda/evidra/internal/store/redis"
)

func TestEvidenceChannel(t *testing.T) {
	t.Parallel()

	tenantA := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	tenantB := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	tests := []struct {
		name   string
		tenant uuid.UUID
		want   string
	}{
		{name: "tenant a", tenant: tenantA, want: "tenant:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee:evidence"},
		{name: "tenant b", tenant: tenantB, want: "tenant:11111111-2222-3333-4444-555555555555:evidence"},
		{name: "nil uuid", tenant: uuid.Nil, want: "tenant:00000000-0000-0000-0000-000000000000:evidence"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, redisstore.EvidenceChannel(tc.tenant))
		})
	}

	t.Run("tenants never share a channel", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, redisstore.EvidenceChannel(tenantA), redisstore.EvidenceChannel(tenantB))
	})
}

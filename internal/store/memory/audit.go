package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type AuditRepo struct {
	s *Store
}

func (r *AuditRepo) Record(_ context.Context, e *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.appendEvents(e)
	return nil
}

// ListByTenant returns events newest first.
func (r *AuditRepo) ListByTenant(_ context.Context, tenantID uuid.UUID, filter domain.AuditFilter) ([]*domain.AuditEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.AuditEvent
	for i := len(r.s.events) - 1; i >= 0; i-- {
		ev := r.s.events[i]
		switch {
		case ev.TenantID != tenantID:
			continue
		case filter.EntityType != "" && ev.EntityType != filter.EntityType:
			continue
		case filter.EntityID != nil && ev.EntityID != *filter.EntityID:
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}

	return page(out, filter.Limit, filter.Offset), nil
}

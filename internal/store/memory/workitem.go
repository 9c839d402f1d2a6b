package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type WorkItemRepo struct {
	s *Store
}

func cloneWorkItem(w *domain.WorkItem) *domain.WorkItem {
	cp := *w
	cp.EvidenceIDs = append([]uuid.UUID(nil), w.EvidenceIDs...)
	if w.ResolvedBy != nil {
		by := *w.ResolvedBy
		cp.ResolvedBy = &by
	}
	if w.ResolvedAt != nil {
		at := *w.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

func (r *WorkItemRepo) Create(_ context.Context, w *domain.WorkItem, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.workItems[w.ID]; exists {
		return fmt.Errorf("workItemRepo.Create: %w", domain.ErrDuplicate)
	}
	r.s.workItems[w.ID] = cloneWorkItem(w)
	r.s.appendEvents(ev)

	return nil
}

func (r *WorkItemRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.WorkItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	w, ok := r.s.workItems[id]
	if !ok || w.TenantID != tenantID {
		return nil, fmt.Errorf("workItemRepo.GetByID: %w", domain.ErrNotFound)
	}
	return cloneWorkItem(w), nil
}

func (r *WorkItemRepo) List(_ context.Context, tenantID uuid.UUID, status domain.WorkItemStatus, limit, offset int) ([]*domain.WorkItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.WorkItem
	for _, w := range r.s.workItems {
		if w.TenantID != tenantID || (status != "" && w.Status != status) {
			continue
		}
		out = append(out, cloneWorkItem(w))
	}
	sortNewestFirst(out, func(w *domain.WorkItem) (int64, uuid.UUID) { return w.CreatedAt.UnixNano(), w.ID })

	return page(out, limit, offset), nil
}

func (r *WorkItemRepo) Resolve(_ context.Context, tenantID, id uuid.UUID, resolution string, resolvedBy uuid.UUID, at time.Time, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.workItems[id]
	if !ok || w.TenantID != tenantID {
		return fmt.Errorf("workItemRepo.Resolve: %w", domain.ErrNotFound)
	}
	if !w.Status.ValidTransition(domain.WorkItemResolved) {
		return fmt.Errorf("workItemRepo.Resolve: %w", domain.ErrConflict)
	}

	next := cloneWorkItem(w)
	next.Status = domain.WorkItemResolved
	next.Resolution = resolution
	next.ResolvedBy = &resolvedBy
	next.ResolvedAt = &at
	r.s.workItems[id] = next
	r.s.appendEvents(ev)

	return nil
}

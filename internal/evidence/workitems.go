package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// WorkItemInput describes a work item to open.
type WorkItemInput struct {
	Type        domain.WorkItemType
	Priority    domain.WorkItemPriority
	Title       string
	Description string
	EvidenceIDs []uuid.UUID
}

func (s *Service) CreateWorkItem(ctx context.Context, actor domain.Actor, in WorkItemInput) (*domain.WorkItem, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	switch {
	case in.Type == "":
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "type", "type is required")
	case !in.Type.Valid():
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "type", fmt.Sprintf("unknown work item type %q", in.Type))
	case title == "":
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "title", "title is required")
	case len(in.EvidenceIDs) == 0:
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "evidence_ids", "at least one evidence id is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "priority", fmt.Sprintf("unknown priority %q", priority))
	}

	seen := make(map[uuid.UUID]struct{}, len(in.EvidenceIDs))
	ids := make([]uuid.UUID, 0, len(in.EvidenceIDs))
	for _, id := range in.EvidenceIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.store.Evidence().GetRecord(ctx, actor.TenantID, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewFieldError(domain.CodeValidationFailed, "evidence_ids",
					fmt.Sprintf("evidence %s does not exist", id))
			}
			return nil, fmt.Errorf("evidence.CreateWorkItem: %w", err)
		}
		ids = append(ids, id)
	}

	w := &domain.WorkItem{
		ID:          uuid.New(),
		TenantID:    actor.TenantID,
		Type:        in.Type,
		Status:      domain.WorkItemOpen,
		Priority:    priority,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		EvidenceIDs: ids,
		CreatedBy:   actor.UserID,
		CreatedAt:   s.now().UTC(),
	}

	ev := s.event(ctx, actor, domain.ActionWorkItemOpened, domain.EntityWorkItem, w.ID,
		"", string(domain.WorkItemOpen), domain.CitationInternalControl)
	ev.Details = map[string]any{"type": w.Type, "priority": w.Priority}

	if err := s.store.WorkItems().Create(ctx, w, ev); err != nil {
		return nil, fmt.Errorf("evidence.CreateWorkItem: %w", err)
	}
	s.publish(ctx, ev)
	s.notify(ctx, w)

	return w, nil
}

func (s *Service) GetWorkItem(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.WorkItem, error) {
	w, err := s.store.WorkItems().GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.GetWorkItem: %w", err)
	}
	return w, nil
}

func (s *Service) ListWorkItems(ctx context.Context, actor domain.Actor, status domain.WorkItemStatus, limit, offset int) ([]*domain.WorkItem, error) {
	if status != "" && status != domain.WorkItemOpen && status != domain.WorkItemResolved {
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "status", fmt.Sprintf("unknown work item status %q", status))
	}

	items, err := s.store.WorkItems().List(ctx, actor.TenantID, status, pageLimit(limit), pageOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("evidence.ListWorkItems: %w", err)
	}
	return items, nil
}

// ResolveWorkItem moves an OPEN work item to RESOLVED.
func (s *Service) ResolveWorkItem(ctx context.Context, actor domain.Actor, id uuid.UUID, resolution string) (*domain.WorkItem, error) {
	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	repo := s.store.WorkItems()
	w, err := repo.GetByID(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.ResolveWorkItem: %w", err)
	}
	if !w.Status.ValidTransition(domain.WorkItemResolved) {
		return nil, invalidTransition(w.Status)
	}

	now := s.now().UTC()
	resolution = strings.TrimSpace(resolution)
	ev := s.event(ctx, actor, domain.ActionWorkItemResolved, domain.EntityWorkItem, w.ID,
		string(domain.WorkItemOpen), string(domain.WorkItemResolved), domain.CitationInternalControl)
	ev.Details = map[string]any{"resolution": resolution}

	if err := repo.Resolve(ctx, actor.TenantID, id, resolution, actor.UserID, now, ev); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, invalidTransition(domain.WorkItemResolved)
		}
		return nil, fmt.Errorf("evidence.ResolveWorkItem: %w", err)
	}
	s.publish(ctx, ev)

	resolvedBy := actor.UserID
	w.Status = domain.WorkItemResolved
	w.Resolution = resolution
	w.ResolvedBy = &resolvedBy
	w.ResolvedAt = &now
	return w, nil
}

func invalidTransition(from domain.WorkItemStatus) error {
	return domain.NewFieldError(domain.CodeInvalidTransition, "status",
		fmt.Sprintf("work item cannot move from %s to %s", from, domain.WorkItemResolved))
}

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WorkItemType string

const (
	WorkItemMappingReview      WorkItemType = "MAPPING_REVIEW"
	WorkItemConflictResolution WorkItemType = "CONFLICT_RESOLUTION"
	WorkItemEvidenceReview     WorkItemType = "EVIDENCE_REVIEW"
)

func (t WorkItemType) Valid() bool {
	switch t {
	case WorkItemMappingReview, WorkItemConflictResolution, WorkItemEvidenceReview:
		return true
	default:
		return false
	}
}

type WorkItemStatus string

const (
	WorkItemOpen     WorkItemStatus = "OPEN"
	WorkItemResolved WorkItemStatus = "RESOLVED"
)

// ValidTransition checks if a work item state transition is allowed.
// Allowed: OPEN->RESOLVED.
func (s WorkItemStatus) ValidTransition(to WorkItemStatus) bool {
	return s == WorkItemOpen && to == WorkItemResolved
}

type WorkItemPriority string

const (
	PriorityLow      WorkItemPriority = "LOW"
	PriorityMedium   WorkItemPriority = "MEDIUM"
	PriorityHigh     WorkItemPriority = "HIGH"
	PriorityCritical WorkItemPriority = "CRITICAL"
)

func (p WorkItemPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// WorkItem is a follow-up task referencing one or more evidence records.
type WorkItem struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Type        WorkItemType
	Status      WorkItemStatus
	Priority    WorkItemPriority
	Title       string
	Description string
	EvidenceIDs []uuid.UUID
	Resolution  string
	CreatedBy   uuid.UUID
	ResolvedBy  *uuid.UUID
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

type WorkItemRepository interface {
	Create(ctx context.Context, w *WorkItem, ev *AuditEvent) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*WorkItem, error)
	List(ctx context.Context, tenantID uuid.UUID, status WorkItemStatus, limit, offset int) ([]*WorkItem, error)
	// Resolve moves an OPEN item to RESOLVED. Returns ErrConflict if the item is not OPEN.
	Resolve(ctx context.Context, tenantID, id uuid.UUID, resolution string, resolvedBy uuid.UUID, at time.Time, ev *AuditEvent) error
}

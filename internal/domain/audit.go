package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entity types recorded on audit events.
const (
	EntityDraft       = "evidence_draft"
	EntityRecord      = "evidence_record"
	EntityWorkItem    = "work_item"
	EntityDeclaration = "registry_declaration"
)

// Audit actions.
const (
	ActionDraftCreated     = "draft.created"
	ActionDraftUpdated     = "draft.updated"
	ActionPayloadAttached  = "draft.payload_attached"
	ActionFileAttached     = "draft.file_attached"
	ActionDraftQuarantined = "draft.quarantined"
	ActionDraftSealed      = "draft.sealed"
	ActionRecordIngested   = "record.ingested"
	ActionRecordSealed     = "record.sealed"
	ActionWorkItemOpened   = "work_item.opened"
	ActionWorkItemResolved = "work_item.resolved"
	ActionDeclarationBuilt = "registry.declaration_generated"
)

// Regulatory citations attached to audit events.
const (
	CitationCBAMRecordKeeping = "Regulation (EU) 2023/956 (CBAM), record keeping of embedded emissions data"
	CitationCBAMVerification  = "Implementing Regulation (EU) 2023/1773, supporting documentation for reported data"
	CitationGDPRStorage       = "Regulation (EU) 2016/679 (GDPR) Art. 5(1)(e), storage limitation"
	CitationGDPRProcessing    = "Regulation (EU) 2016/679 (GDPR) Art. 30, records of processing"
	CitationInternalControl   = "Internal control: evidence review and conflict resolution"
)

// AuditEvent is an append-only record of a single state transition.
type AuditEvent struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	ActorType          string // "user", "api_key", "system"
	ActorID            string
	ActorEmail         string
	Action             string
	EntityType         string
	EntityID           uuid.UUID
	PreviousState      string // empty for creation
	NewState           string
	RegulatoryCitation string
	CorrelationID      string
	Details            map[string]any
	CreatedAt          time.Time
}

// NewAuditEvent builds an event for a transition performed by actor.
func NewAuditEvent(actor Actor, action, entityType string, entityID uuid.UUID, from, to, citation string, at time.Time) *AuditEvent {
	return &AuditEvent{
		ID:                 uuid.New(),
		TenantID:           actor.TenantID,
		ActorType:          actor.ActorType(),
		ActorID:            actor.UserID.String(),
		ActorEmail:         actor.Email,
		Action:             action,
		EntityType:         entityType,
		EntityID:           entityID,
		PreviousState:      from,
		NewState:           to,
		RegulatoryCitation: citation,
		Details:            map[string]any{},
		CreatedAt:          at,
	}
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	EntityType string
	EntityID   *uuid.UUID
	Limit      int
	Offset     int
}

type AuditRepository interface {
	Record(ctx context.Context, e *AuditEvent) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filter AuditFilter) ([]*AuditEvent, error)
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying the request correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

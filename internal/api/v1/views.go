package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// Wire representations. Domain types carry no JSON tags of their own except
// the shared metadata block, so every response is shaped here.

type UserView struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *domain.User) UserView {
	return UserView{
		ID:        u.ID,
		TenantID:  u.TenantID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

type TenantView struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func newTenantView(t *domain.Tenant) TenantView {
	return TenantView{ID: t.ID, Name: t.Name, Slug: t.Slug, Settings: t.Settings, CreatedAt: t.CreatedAt}
}

type APIKeyView struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newAPIKeyView(k *domain.APIKey) APIKeyView {
	return APIKeyView{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}

type DraftView struct {
	ID        uuid.UUID `json:"id"`
	RequestID string    `json:"request_id"`
	domain.EvidenceMetadata
	Status           domain.DraftStatus     `json:"status"`
	PayloadKind      domain.PayloadKind     `json:"payload_kind"`
	Payload          map[string]any         `json:"payload,omitempty"`
	PayloadHash      string                 `json:"payload_hash,omitempty"`
	Attachment       *domain.AttachmentInfo `json:"attachment,omitempty"`
	QuarantineReason string                 `json:"quarantine_reason,omitempty"`
	CreatedBy        uuid.UUID              `json:"created_by"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	SealedAt         *time.Time             `json:"sealed_at,omitempty"`
}

func newDraftView(d *domain.EvidenceDraft) DraftView {
	return DraftView{
		ID:               d.ID,
		RequestID:        d.RequestID,
		EvidenceMetadata: d.EvidenceMetadata,
		Status:           d.Status,
		PayloadKind:      d.PayloadKind,
		Payload:          d.Payload,
		PayloadHash:      d.PayloadHash,
		Attachment:       d.Attachment,
		QuarantineReason: d.QuarantineReason,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		SealedAt:         d.SealedAt,
	}
}

type RecordView struct {
	ID        uuid.UUID `json:"id"`
	DisplayID string    `json:"display_id"`
	DraftID   uuid.UUID `json:"draft_id"`
	domain.EvidenceMetadata
	PayloadKind       domain.PayloadKind     `json:"payload_kind"`
	Payload           map[string]any         `json:"payload,omitempty"`
	Attachment        *domain.AttachmentInfo `json:"attachment,omitempty"`
	PayloadHash       string                 `json:"payload_hash"`
	MetadataHash      string                 `json:"metadata_hash"`
	TrustLevel        domain.TrustLevel      `json:"trust_level"`
	ReviewStatus      domain.ReviewStatus    `json:"review_status"`
	LedgerState       domain.LedgerState     `json:"ledger_state"`
	RetentionEndsAt   *time.Time             `json:"retention_ends_at,omitempty"`
	AttestorUserID    uuid.UUID              `json:"attestor_user_id"`
	AttestedByEmail   string                 `json:"attested_by_email"`
	AttestationMethod string                 `json:"attestation_method"`
	AttestedAtUTC     time.Time              `json:"attested_at_utc"`
	CreatedAt         time.Time              `json:"created_at"`
}

func newRecordView(r *domain.EvidenceRecord) RecordView {
	return RecordView{
		ID:                r.ID,
		DisplayID:         r.DisplayID,
		DraftID:           r.DraftID,
		EvidenceMetadata:  r.EvidenceMetadata,
		PayloadKind:       r.PayloadKind,
		Payload:           r.Payload,
		Attachment:        r.Attachment,
		PayloadHash:       r.PayloadHash,
		MetadataHash:      r.MetadataHash,
		TrustLevel:        r.TrustLevel,
		ReviewStatus:      r.ReviewStatus,
		LedgerState:       r.LedgerState,
		RetentionEndsAt:   r.RetentionEndsAt,
		AttestorUserID:    r.AttestorUserID,
		AttestedByEmail:   r.AttestedByEmail,
		AttestationMethod: r.AttestationMethod,
		AttestedAtUTC:     r.AttestedAtUTC,
		CreatedAt:         r.CreatedAt,
	}
}

type WorkItemView struct {
	ID          uuid.UUID               `json:"id"`
	Type        domain.WorkItemType     `json:"type"`
	Status      domain.WorkItemStatus   `json:"status"`
	Priority    domain.WorkItemPriority `json:"priority"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	EvidenceIDs []uuid.UUID             `json:"evidence_ids"`
	Resolution  string                  `json:"resolution,omitempty"`
	CreatedBy   uuid.UUID               `json:"created_by"`
	ResolvedBy  *uuid.UUID              `json:"resolved_by,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	ResolvedAt  *time.Time              `json:"resolved_at,omitempty"`
}

func newWorkItemView(w *domain.WorkItem) WorkItemView {
	ids := w.EvidenceIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return WorkItemView{
		ID:          w.ID,
		Type:        w.Type,
		Status:      w.Status,
		Priority:    w.Priority,
		Title:       w.Title,
		Description: w.Description,
		EvidenceIDs: ids,
		Resolution:  w.Resolution,
		CreatedBy:   w.CreatedBy,
		ResolvedBy:  w.ResolvedBy,
		CreatedAt:   w.CreatedAt,
		ResolvedAt:  w.ResolvedAt,
	}
}

type AuditEventView struct {
	ID                 uuid.UUID      `json:"id"`
	ActorType          string         `json:"actor_type"`
	ActorID            string         `json:"actor_id"`
	ActorEmail         string         `json:"actor_email,omitempty"`
	Action             string         `json:"action"`
	EntityType         string         `json:"entity_type"`
	EntityID           uuid.UUID      `json:"entity_id"`
	PreviousState      string         `json:"previous_state,omitempty"`
	NewState           string         `json:"new_state"`
	RegulatoryCitation string         `json:"regulatory_citation"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

func newAuditEventView(e *domain.AuditEvent) AuditEventView {
	return AuditEventView{
		ID:                 e.ID,
		ActorType:          e.ActorType,
		ActorID:            e.ActorID,
		ActorEmail:         e.ActorEmail,
		Action:             e.Action,
		EntityType:         e.EntityType,
		EntityID:           e.EntityID,
		PreviousState:      e.PreviousState,
		NewState:           e.NewState,
		RegulatoryCitation: e.RegulatoryCitation,
		CorrelationID:      e.CorrelationID,
		Details:            e.Details,
		CreatedAt:          e.CreatedAt,
	}
}

func mapViews[T, V any](items []T, view func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, it := range items {
		out = append(out, view(it))
	}
	return out
}

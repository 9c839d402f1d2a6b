package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
)

// SealDraft turns an open draft into an immutable evidence record. Exactly one
// concurrent caller wins; the others get SEALED_IMMUTABLE unless they present
// the winner's command id, in which case the record is replayed.
func (s *Service) SealDraft(ctx context.Context, actor domain.Actor, id uuid.UUID, commandID string) (_ *domain.EvidenceRecord, replayed bool, err error) {
	started := time.Now()
	defer func() { s.metrics.rejected(err) }()

	if err := requireWriter(actor); err != nil {
		return nil, false, err
	}

	repo := s.store.Evidence()
	d, err := repo.GetDraft(ctx, actor.TenantID, id)
	if err != nil {
		return nil, false, fmt.Errorf("evidence.SealDraft: %w", err)
	}

	switch d.Status {
	case domain.DraftSealed:
		return s.replaySeal(ctx, actor, d.ID, commandID)
	case domain.DraftQuarantined:
		return nil, false, stateError(domain.ErrQuarantined)
	}

	if !d.HasPayload() {
		return nil, false, domain.NewFieldError(domain.CodeValidationFailed, "payload", "attach a payload before sealing")
	}

	if err := s.gate.ValidateDraft(d); err != nil {
		s.quarantine(ctx, actor, d, err)
		return nil, false, err
	}

	payloadHash, err := s.sealedPayloadHash(ctx, d)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			s.quarantine(ctx, actor, d, err)
		}
		return nil, false, err
	}

	now := s.now().UTC()
	metadataHash, err := MetadataHash(d, payloadHash, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, false, err
	}

	recordID := uuid.New()
	record := &domain.EvidenceRecord{
		ID:                recordID,
		TenantID:          d.TenantID,
		DraftID:           d.ID,
		DisplayID:         domain.DisplayID(recordID, now),
		EvidenceMetadata:  d.EvidenceMetadata,
		PayloadKind:       d.PayloadKind,
		Payload:           d.Payload,
		Attachment:        d.Attachment,
		PayloadHash:       payloadHash,
		MetadataHash:      metadataHash,
		TrustLevel:        d.IngestionMethod.TrustLevel(),
		ReviewStatus:      domain.ReviewNotReviewed,
		LedgerState:       domain.LedgerIngested,
		RetentionEndsAt:   d.RetentionPolicy.EndsAt(now),
		SealCommandID:     commandID,
		CreatedBy:         d.CreatedBy,
		AttestorUserID:    actor.UserID,
		AttestedByEmail:   actor.Email,
		AttestationMethod: actor.AuthMethod,
		AttestedAtUTC:     now,
		CreatedAt:         now,
	}

	draftEv := s.event(ctx, actor, domain.ActionDraftSealed, domain.EntityDraft, d.ID,
		string(domain.DraftOpen), string(domain.DraftSealed), citationFor(d.EvidenceMetadata))
	draftEv.Details = map[string]any{"evidence_id": record.ID.String()}

	ingestEv := s.event(ctx, actor, domain.ActionRecordIngested, domain.EntityRecord, record.ID,
		"", string(domain.LedgerIngested), domain.CitationCBAMRecordKeeping)
	ingestEv.Details = map[string]any{
		"display_id":   record.DisplayID,
		"payload_hash": record.PayloadHash,
	}

	sealEv := s.event(ctx, actor, domain.ActionRecordSealed, domain.EntityRecord, record.ID,
		string(domain.LedgerIngested), string(domain.LedgerSealed), domain.CitationCBAMRecordKeeping)
	sealEv.Details = map[string]any{
		"metadata_hash":      record.MetadataHash,
		"trust_level":        record.TrustLevel,
		"attestation_method": record.AttestationMethod,
	}
	if record.RetentionEndsAt != nil {
		sealEv.Details["retention_ends_at"] = record.RetentionEndsAt.Format(time.RFC3339)
	}

	commit := &domain.SealCommit{
		TenantID: d.TenantID,
		DraftID:  d.ID,
		SealedAt: now,
		Record:   record,
		Events:   []*domain.AuditEvent{draftEv, ingestEv, sealEv},
	}

	if record.TrustLevel == domain.TrustLow {
		w := &domain.WorkItem{
			ID:          uuid.New(),
			TenantID:    d.TenantID,
			Type:        domain.WorkItemMappingReview,
			Status:      domain.WorkItemOpen,
			Priority:    domain.PriorityMedium,
			Title:       fmt.Sprintf("Review manually entered %s evidence %s", record.DatasetType, record.DisplayID),
			Description: "Manually entered evidence is sealed with LOW trust and needs a mapping review.",
			EvidenceIDs: []uuid.UUID{record.ID},
			CreatedBy:   actor.UserID,
			CreatedAt:   now,
		}
		commit.WorkItem = w
		commit.WorkItemEvent = s.event(ctx, actor, domain.ActionWorkItemOpened, domain.EntityWorkItem, w.ID,
			"", string(domain.WorkItemOpen), domain.CitationInternalControl)
		commit.WorkItemEvent.Details = map[string]any{"type": w.Type, "evidence_id": record.ID.String()}
	}

	if err := repo.Seal(ctx, commit); err != nil {
		switch {
		case errors.Is(err, domain.ErrSealed):
			return s.replaySeal(ctx, actor, d.ID, commandID)
		case errors.Is(err, domain.ErrQuarantined):
			return nil, false, stateError(err)
		default:
			return nil, false, fmt.Errorf("evidence.SealDraft: %w", err)
		}
	}

	s.publish(ctx, commit.Events...)
	s.publish(ctx, commit.WorkItemEvent)
	s.notify(ctx, commit.WorkItem)
	s.metrics.sealed(record.TrustLevel, started)

	log.Info().
		Str("tenant_id", record.TenantID.String()).
		Str("evidence_id", record.ID.String()).
		Str("display_id", record.DisplayID).
		Str("trust_level", string(record.TrustLevel)).
		Msg("evidence sealed")

	return record, false, nil
}

// replaySeal handles a seal against an already sealed draft.
func (s *Service) replaySeal(ctx context.Context, actor domain.Actor, draftID uuid.UUID, commandID string) (*domain.EvidenceRecord, bool, error) {
	if commandID != "" {
		rec, err := s.store.Evidence().GetRecordByDraft(ctx, actor.TenantID, draftID)
		if err == nil && rec.SealCommandID == commandID {
			return rec, true, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("evidence.SealDraft: replay: %w", err)
		}
	}
	return nil, false, stateError(domain.ErrSealed)
}

// sealedPayloadHash recomputes the payload hash from stored content.
func (s *Service) sealedPayloadHash(ctx context.Context, d *domain.EvidenceDraft) (string, error) {
	if d.PayloadKind == domain.PayloadJSON {
		return PayloadHash(d.Payload)
	}

	att, err := s.store.Evidence().GetAttachment(ctx, d.TenantID, d.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.NewFieldError(domain.CodeValidationFailed, "payload", "attached file content is missing")
	}
	if err != nil {
		return "", fmt.Errorf("evidence.SealDraft: load attachment: %w", err)
	}
	att, err = s.openAttachment(att)
	if err != nil {
		return "", fmt.Errorf("evidence.SealDraft: %w", err)
	}

	hash := ContentHash(att.Content)
	if hash != d.Attachment.SHA256 {
		return "", domain.NewFieldError(domain.CodeValidationFailed, "payload", "attached file content does not match its recorded hash")
	}
	return hash, nil
}

// quarantine moves a draft that failed seal-time validation out of the
// sealable set. Failures are logged; the caller reports the original error.
func (s *Service) quarantine(ctx context.Context, actor domain.Actor, d *domain.EvidenceDraft, cause error) {
	reason := cause.Error()
	var de *domain.Error
	if errors.As(cause, &de) {
		reason = de.Message
	}

	ev := s.event(ctx, actor, domain.ActionDraftQuarantined, domain.EntityDraft, d.ID,
		string(domain.DraftOpen), string(domain.DraftQuarantined), domain.CitationInternalControl)
	ev.Details = map[string]any{
		"error_code": domain.CodeOf(cause),
		"reason":     reason,
	}

	if err := s.store.Evidence().QuarantineDraft(ctx, d.TenantID, d.ID, reason, s.now().UTC(), ev); err != nil {
		log.Warn().Err(err).Str("draft_id", d.ID.String()).Msg("quarantine draft")
		return
	}
	s.publish(ctx, ev)
}

func (s *Service) GetRecord(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.EvidenceRecord, error) {
	rec, err := s.store.Evidence().GetRecord(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.GetRecord: %w", err)
	}
	return rec, nil
}

// FindRecords queries the caller's sealed records. Ids belonging to another
// tenant simply match nothing.
func (s *Service) FindRecords(ctx context.Context, actor domain.Actor, filter domain.RecordFilter) ([]*domain.EvidenceRecord, error) {
	if filter.DatasetType != "" && !filter.DatasetType.Valid() {
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "dataset_type",
			fmt.Sprintf("unknown dataset type %q", filter.DatasetType))
	}
	filter.Limit = pageLimit(filter.Limit)
	filter.Offset = pageOffset(filter.Offset)

	records, err := s.store.Evidence().FindRecords(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("evidence.FindRecords: %w", err)
	}
	return records, nil
}

// UpdateRecord rejects every write to a sealed record.
func (s *Service) UpdateRecord(ctx context.Context, actor domain.Actor, id uuid.UUID) (err error) {
	defer func() { s.metrics.rejected(err) }()

	rec, err := s.store.Evidence().GetRecord(ctx, actor.TenantID, id)
	if err != nil {
		return fmt.Errorf("evidence.UpdateRecord: %w", err)
	}
	return domain.NewError(domain.CodeSealedImmutable,
		fmt.Sprintf("evidence record %s is sealed and immutable", rec.DisplayID))
}

package evidence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// CreateDraft validates req and stores a new draft. A repeated request id with
// an identical request returns the existing draft and replayed=true.
func (s *Service) CreateDraft(ctx context.Context, actor domain.Actor, req CreateRequest) (_ *domain.EvidenceDraft, replayed bool, err error) {
	defer func() { s.metrics.rejected(err) }()

	if err := requireWriter(actor); err != nil {
		return nil, false, err
	}

	decl, err := s.gate.ValidateCreate(req)
	if err != nil {
		return nil, false, err
	}

	hash, err := requestHash(decl)
	if err != nil {
		return nil, false, err
	}

	repo := s.store.Evidence()
	existing, err := repo.GetDraftByRequestID(ctx, actor.TenantID, decl.RequestID)
	switch {
	case err == nil:
		return replayDraft(existing, hash)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("evidence.CreateDraft: %w", err)
	}

	now := s.now().UTC()
	d := &domain.EvidenceDraft{
		ID:               uuid.New(),
		TenantID:         actor.TenantID,
		RequestID:        decl.RequestID,
		RequestHash:      hash,
		EvidenceMetadata: decl.Metadata,
		Status:           domain.DraftOpen,
		PayloadKind:      domain.PayloadNone,
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if decl.Payload != nil {
		payloadHash, hashErr := PayloadHash(decl.Payload)
		if hashErr != nil {
			return nil, false, hashErr
		}
		d.PayloadKind = domain.PayloadJSON
		d.Payload = decl.Payload
		d.PayloadHash = payloadHash
	}

	ev := s.event(ctx, actor, domain.ActionDraftCreated, domain.EntityDraft, d.ID,
		"", string(domain.DraftOpen), citationFor(d.EvidenceMetadata))
	ev.Details = map[string]any{
		"request_id":       d.RequestID,
		"ingestion_method": d.IngestionMethod,
		"dataset_type":     d.DatasetType,
		"source_system":    d.SourceSystem,
	}

	if err := repo.CreateDraft(ctx, d, ev); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, false, fmt.Errorf("evidence.CreateDraft: %w", err)
		}
		// A concurrent request with the same id committed first.
		existing, getErr := repo.GetDraftByRequestID(ctx, actor.TenantID, decl.RequestID)
		if getErr != nil {
			return nil, false, fmt.Errorf("evidence.CreateDraft: %w", getErr)
		}
		return replayDraft(existing, hash)
	}

	s.metrics.draftCreated(d.IngestionMethod)
	s.publish(ctx, ev)

	return d, false, nil
}

func replayDraft(existing *domain.EvidenceDraft, hash string) (*domain.EvidenceDraft, bool, error) {
	if existing.RequestHash != hash {
		return nil, false, domain.NewFieldError(domain.CodeIdempotencyConflict, "request_id",
			fmt.Sprintf("request_id %q was already used with a different request", existing.RequestID))
	}
	return existing, true, nil
}

func (s *Service) GetDraft(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.EvidenceDraft, error) {
	d, err := s.store.Evidence().GetDraft(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.GetDraft: %w", err)
	}
	return d, nil
}

func (s *Service) ListDrafts(ctx context.Context, actor domain.Actor, filter domain.DraftFilter) ([]*domain.EvidenceDraft, error) {
	if filter.Status != "" && filter.Status != domain.DraftOpen &&
		filter.Status != domain.DraftSealed && filter.Status != domain.DraftQuarantined {
		return nil, domain.NewFieldError(domain.CodeValidationFailed, "status", fmt.Sprintf("unknown draft status %q", filter.Status))
	}
	filter.Limit = pageLimit(filter.Limit)
	filter.Offset = pageOffset(filter.Offset)

	drafts, err := s.store.Evidence().ListDrafts(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("evidence.ListDrafts: %w", err)
	}
	return drafts, nil
}

// DraftPatch changes declared metadata of an open draft. Nil fields are left
// unchanged. Ingestion method and dataset type are fixed at creation.
type DraftPatch struct {
	SourceSystem         *string
	DeclaredScope        *string
	ScopeTargetID        *string
	Purpose              *string
	RetentionPolicy      *string
	ContainsPersonalData *bool
	GDPRLegalBasis       *string
}

func (s *Service) UpdateDraft(ctx context.Context, actor domain.Actor, id uuid.UUID, patch DraftPatch) (_ *domain.EvidenceDraft, err error) {
	defer func() { s.metrics.rejected(err) }()

	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	repo := s.store.Evidence()
	d, err := repo.GetDraft(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.UpdateDraft: %w", err)
	}
	if err := d.Status.WriteError(); err != nil {
		return nil, stateError(err)
	}

	meta := d.EvidenceMetadata
	changed := map[string]any{}
	setString := func(field string, dst *string, v *string) {
		if v == nil {
			return
		}
		*dst = strings.TrimSpace(*v)
		changed[field] = *dst
	}
	setString("source_system", &meta.SourceSystem, patch.SourceSystem)
	setString("scope_target_id", &meta.ScopeTargetID, patch.ScopeTargetID)
	setString("purpose", &meta.Purpose, patch.Purpose)
	setString("gdpr_legal_basis", &meta.GDPRLegalBasis, patch.GDPRLegalBasis)
	if patch.DeclaredScope != nil {
		meta.DeclaredScope = domain.DeclaredScope(strings.TrimSpace(*patch.DeclaredScope))
		changed["declared_scope"] = meta.DeclaredScope
	}
	if patch.RetentionPolicy != nil {
		meta.RetentionPolicy = domain.RetentionPolicy(strings.TrimSpace(*patch.RetentionPolicy))
		changed["retention_policy"] = meta.RetentionPolicy
	}
	if patch.ContainsPersonalData != nil {
		meta.ContainsPersonalData = *patch.ContainsPersonalData
		changed["contains_personal_data"] = meta.ContainsPersonalData
	}

	if err := s.gate.CheckMetadata(&meta); err != nil {
		return nil, err
	}
	if meta == d.EvidenceMetadata {
		return d, nil
	}

	d.EvidenceMetadata = meta
	d.UpdatedAt = s.now().UTC()

	ev := s.event(ctx, actor, domain.ActionDraftUpdated, domain.EntityDraft, d.ID,
		string(domain.DraftOpen), string(domain.DraftOpen), citationFor(meta))
	ev.Details = changed
	if meta.ContainsPersonalData || patch.RetentionPolicy != nil {
		ev.RegulatoryCitation = domain.CitationGDPRStorage
	}

	if err := repo.UpdateDraft(ctx, d, ev); err != nil {
		return nil, stateError(fmt.Errorf("evidence.UpdateDraft: %w", err))
	}
	s.publish(ctx, ev)

	return d, nil
}

// AttachPayload sets a JSON object payload on an open draft. Either value
// (decoded JSON) or raw (JSON text) is used.
func (s *Service) AttachPayload(ctx context.Context, actor domain.Actor, id uuid.UUID, value any, raw string) (_ *domain.EvidenceDraft, err error) {
	defer func() { s.metrics.rejected(err) }()

	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	repo := s.store.Evidence()
	d, err := repo.GetDraft(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.AttachPayload: %w", err)
	}
	if err := d.Status.WriteError(); err != nil {
		return nil, stateError(err)
	}

	payload, err := s.gate.ValidatePayload(value, raw)
	if err != nil {
		return nil, err
	}
	hash, err := PayloadHash(payload)
	if err != nil {
		return nil, err
	}

	previous := d.PayloadKind
	d.PayloadKind = domain.PayloadJSON
	d.Payload = payload
	d.PayloadHash = hash
	d.Attachment = nil
	d.UpdatedAt = s.now().UTC()

	ev := s.event(ctx, actor, domain.ActionPayloadAttached, domain.EntityDraft, d.ID,
		string(domain.DraftOpen), string(domain.DraftOpen), domain.CitationCBAMVerification)
	ev.Details = map[string]any{
		"payload_hash":     hash,
		"previous_payload": previous,
	}

	if err := repo.UpdateDraft(ctx, d, ev); err != nil {
		return nil, stateError(fmt.Errorf("evidence.AttachPayload: %w", err))
	}
	s.publish(ctx, ev)

	return d, nil
}

// FileUpload is a file submitted for attachment to a draft.
type FileUpload struct {
	FileName    string
	ContentType string
	Content     []byte
}

// AttachFile stores a file on an open draft. The content hash is always
// computed here. JSON and YAML documents become the structured payload; other
// files are referenced by name, type, size and hash.
func (s *Service) AttachFile(ctx context.Context, actor domain.Actor, id uuid.UUID, file FileUpload) (_ *domain.EvidenceDraft, err error) {
	defer func() { s.metrics.rejected(err) }()

	if err := requireWriter(actor); err != nil {
		return nil, err
	}

	repo := s.store.Evidence()
	d, err := repo.GetDraft(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("evidence.AttachFile: %w", err)
	}
	if err := d.Status.WriteError(); err != nil {
		return nil, stateError(err)
	}

	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(file.FileName, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return nil, domain.NewFieldError(domain.CodeMissingRequiredMetadata, "file_name", "file_name is required")
	}
	if len(file.Content) == 0 {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "content", "file is empty")
	}
	if int64(len(file.Content)) > s.maxFileBytes {
		return nil, domain.NewFieldError(domain.CodeInvalidPayload, "content",
			fmt.Sprintf("file exceeds %d bytes", s.maxFileBytes))
	}

	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info := domain.AttachmentInfo{
		FileName:    name,
		ContentType: contentType,
		SizeBytes:   int64(len(file.Content)),
		SHA256:      ContentHash(file.Content),
	}

	var payload map[string]any
	if isStructured(name, contentType) {
		payload, err = extractDocument(file.Content)
		if err != nil {
			return nil, err
		}
		if err := s.gate.checkObject(payload); err != nil {
			return nil, err
		}
	} else {
		payload = fileReference(info)
	}

	stored := file.Content
	encrypted := false
	if s.cipher != nil {
		stored, err = s.cipher.EncryptBytes(file.Content)
		if err != nil {
			return nil, fmt.Errorf("evidence.AttachFile: encrypt: %w", err)
		}
		encrypted = true
	}

	now := s.now().UTC()
	d.PayloadKind = domain.PayloadFile
	d.Payload = payload
	d.PayloadHash = info.SHA256
	d.Attachment = &info
	d.UpdatedAt = now

	att := &domain.Attachment{
		TenantID:  d.TenantID,
		DraftID:   d.ID,
		Info:      info,
		Content:   stored,
		Encrypted: encrypted,
		CreatedAt: now,
	}

	ev := s.event(ctx, actor, domain.ActionFileAttached, domain.EntityDraft, d.ID,
		string(domain.DraftOpen), string(domain.DraftOpen), domain.CitationCBAMVerification)
	ev.Details = map[string]any{
		"file_name":  info.FileName,
		"size_bytes": info.SizeBytes,
		"sha256":     info.SHA256,
	}

	if err := repo.PutAttachment(ctx, d, att, ev); err != nil {
		return nil, stateError(fmt.Errorf("evidence.AttachFile: %w", err))
	}
	s.publish(ctx, ev)

	return d, nil
}

// GetAttachment returns the decrypted file attached to a draft.
func (s *Service) GetAttachment(ctx context.Context, actor domain.Actor, draftID uuid.UUID) (*domain.Attachment, error) {
	att, err := s.store.Evidence().GetAttachment(ctx, actor.TenantID, draftID)
	if err != nil {
		return nil, fmt.Errorf("evidence.GetAttachment: %w", err)
	}
	return s.openAttachment(att)
}

func (s *Service) openAttachment(att *domain.Attachment) (*domain.Attachment, error) {
	if !att.Encrypted {
		return att, nil
	}
	if s.cipher == nil {
		return nil, errors.New("evidence: attachment is encrypted but no key is configured")
	}
	plain, err := s.cipher.DecryptBytes(att.Content)
	if err != nil {
		return nil, fmt.Errorf("evidence: decrypt attachment: %w", err)
	}
	out := *att
	out.Content = plain
	out.Encrypted = false
	return &out, nil
}

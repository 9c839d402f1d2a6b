package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type EvidenceRepo struct {
	s *Store
}

func cloneDraft(d *domain.EvidenceDraft) *domain.EvidenceDraft {
	cp := *d
	if d.Attachment != nil {
		info := *d.Attachment
		cp.Attachment = &info
	}
	if d.SealedAt != nil {
		at := *d.SealedAt
		cp.SealedAt = &at
	}
	return &cp
}

func cloneRecord(r *domain.EvidenceRecord) *domain.EvidenceRecord {
	cp := *r
	if r.Attachment != nil {
		info := *r.Attachment
		cp.Attachment = &info
	}
	if r.RetentionEndsAt != nil {
		end := *r.RetentionEndsAt
		cp.RetentionEndsAt = &end
	}
	return &cp
}

func (r *EvidenceRepo) CreateDraft(_ context.Context, d *domain.EvidenceDraft, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := draftKey{tenantID: d.TenantID, requestID: d.RequestID}
	if _, exists := r.s.draftRequests[key]; exists {
		return fmt.Errorf("evidenceRepo.CreateDraft: %w", domain.ErrDuplicate)
	}

	r.s.drafts[d.ID] = cloneDraft(d)
	r.s.draftRequests[key] = d.ID
	r.s.appendEvents(ev)

	return nil
}

// draft must be called with mu held.
func (r *EvidenceRepo) draft(tenantID, id uuid.UUID) (*domain.EvidenceDraft, bool) {
	d, ok := r.s.drafts[id]
	if !ok || d.TenantID != tenantID {
		return nil, false
	}
	return d, true
}

func (r *EvidenceRepo) GetDraft(_ context.Context, tenantID, id uuid.UUID) (*domain.EvidenceDraft, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.draft(tenantID, id)
	if !ok {
		return nil, fmt.Errorf("evidenceRepo.GetDraft: %w", domain.ErrNotFound)
	}
	return cloneDraft(d), nil
}

func (r *EvidenceRepo) GetDraftByRequestID(_ context.Context, tenantID uuid.UUID, requestID string) (*domain.EvidenceDraft, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.draftRequests[draftKey{tenantID: tenantID, requestID: requestID}]
	if !ok {
		return nil, fmt.Errorf("evidenceRepo.GetDraftByRequestID: %w", domain.ErrNotFound)
	}
	return cloneDraft(r.s.drafts[id]), nil
}

func (r *EvidenceRepo) ListDrafts(_ context.Context, tenantID uuid.UUID, filter domain.DraftFilter) ([]*domain.EvidenceDraft, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.EvidenceDraft
	for _, d := range r.s.drafts {
		if d.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, cloneDraft(d))
	}
	sortNewestFirst(out, func(d *domain.EvidenceDraft) (int64, uuid.UUID) { return d.CreatedAt.UnixNano(), d.ID })

	return page(out, filter.Limit, filter.Offset), nil
}

// openDraft returns the stored draft if it is still DRAFT. Must be called with mu held.
func (r *EvidenceRepo) openDraft(caller string, tenantID, id uuid.UUID) (*domain.EvidenceDraft, error) {
	d, ok := r.draft(tenantID, id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err := d.Status.WriteError(); err != nil {
		return nil, fmt.Errorf("%s: %w", caller, err)
	}
	return d, nil
}

func (r *EvidenceRepo) UpdateDraft(_ context.Context, d *domain.EvidenceDraft, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, err := r.openDraft("evidenceRepo.UpdateDraft", d.TenantID, d.ID)
	if err != nil {
		return err
	}

	next := cloneDraft(d)
	// Identity and status are not writable through an update.
	next.RequestID = stored.RequestID
	next.RequestHash = stored.RequestHash
	next.Status = stored.Status
	next.CreatedBy = stored.CreatedBy
	next.CreatedAt = stored.CreatedAt
	r.s.drafts[d.ID] = next
	if next.PayloadKind != domain.PayloadFile {
		delete(r.s.attachments, d.ID)
	}
	r.s.appendEvents(ev)

	return nil
}

func (r *EvidenceRepo) PutAttachment(_ context.Context, d *domain.EvidenceDraft, att *domain.Attachment, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, err := r.openDraft("evidenceRepo.PutAttachment", d.TenantID, d.ID)
	if err != nil {
		return err
	}

	next := cloneDraft(d)
	next.RequestID = stored.RequestID
	next.RequestHash = stored.RequestHash
	next.Status = stored.Status
	next.CreatedBy = stored.CreatedBy
	next.CreatedAt = stored.CreatedAt
	r.s.drafts[d.ID] = next

	cp := *att
	cp.Content = append([]byte(nil), att.Content...)
	r.s.attachments[d.ID] = &cp
	r.s.appendEvents(ev)

	return nil
}

func (r *EvidenceRepo) GetAttachment(_ context.Context, tenantID, draftID uuid.UUID) (*domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	att, ok := r.s.attachments[draftID]
	if !ok || att.TenantID != tenantID {
		return nil, fmt.Errorf("evidenceRepo.GetAttachment: %w", domain.ErrNotFound)
	}
	cp := *att
	cp.Content = append([]byte(nil), att.Content...)
	return &cp, nil
}

func (r *EvidenceRepo) QuarantineDraft(_ context.Context, tenantID, id uuid.UUID, reason string, at time.Time, ev *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, err := r.openDraft("evidenceRepo.QuarantineDraft", tenantID, id)
	if err != nil {
		return err
	}

	next := cloneDraft(d)
	next.Status = domain.DraftQuarantined
	next.QuarantineReason = reason
	next.UpdatedAt = at
	r.s.drafts[id] = next
	r.s.appendEvents(ev)

	return nil
}

func (r *EvidenceRepo) Seal(_ context.Context, c *domain.SealCommit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, err := r.openDraft("evidenceRepo.Seal", c.TenantID, c.DraftID)
	if err != nil {
		return err
	}

	rec := cloneRecord(c.Record)
	if !rec.LedgerState.ValidTransition(domain.LedgerSealed) {
		return fmt.Errorf("evidenceRepo.Seal: ledger state %s: %w", rec.LedgerState, domain.ErrConflict)
	}
	rec.LedgerState = domain.LedgerSealed
	c.Record.LedgerState = domain.LedgerSealed

	next := cloneDraft(d)
	next.Status = domain.DraftSealed
	sealedAt := c.SealedAt
	next.SealedAt = &sealedAt
	next.UpdatedAt = c.SealedAt
	r.s.drafts[d.ID] = next

	r.s.records[rec.ID] = rec
	r.s.recordByDraft[d.ID] = rec.ID
	r.s.appendEvents(c.Events...)

	if c.WorkItem != nil {
		w := cloneWorkItem(c.WorkItem)
		r.s.workItems[w.ID] = w
		r.s.appendEvents(c.WorkItemEvent)
	}

	return nil
}

func (r *EvidenceRepo) GetRecord(_ context.Context, tenantID, id uuid.UUID) (*domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.records[id]
	if !ok || rec.TenantID != tenantID {
		return nil, fmt.Errorf("evidenceRepo.GetRecord: %w", domain.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (r *EvidenceRepo) GetRecordByDraft(_ context.Context, tenantID, draftID uuid.UUID) (*domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.recordByDraft[draftID]
	if !ok {
		return nil, fmt.Errorf("evidenceRepo.GetRecordByDraft: %w", domain.ErrNotFound)
	}
	rec := r.s.records[id]
	if rec.TenantID != tenantID {
		return nil, fmt.Errorf("evidenceRepo.GetRecordByDraft: %w", domain.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (r *EvidenceRepo) FindRecords(_ context.Context, tenantID uuid.UUID, filter domain.RecordFilter) ([]*domain.EvidenceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.EvidenceRecord
	for _, rec := range r.s.records {
		switch {
		case rec.TenantID != tenantID:
			continue
		case filter.ID != nil && rec.ID != *filter.ID:
			continue
		case filter.DisplayID != "" && rec.DisplayID != filter.DisplayID:
			continue
		case filter.DatasetType != "" && rec.DatasetType != filter.DatasetType:
			continue
		case filter.DraftID != nil && rec.DraftID != *filter.DraftID:
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sortNewestFirst(out, func(rec *domain.EvidenceRecord) (int64, uuid.UUID) { return rec.CreatedAt.UnixNano(), rec.ID })

	return page(out, filter.Limit, filter.Offset), nil
}

package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/evidra/internal/domain"
)

type EvidenceRepo struct {
	pool *pgxpool.Pool
}

func NewEvidenceRepo(pool *pgxpool.Pool) *EvidenceRepo {
	return &EvidenceRepo{pool: pool}
}

// --- Drafts ---

const draftColumns = `id, tenant_id, request_id, request_hash,
	ingestion_method, source_system, dataset_type, declared_scope, scope_target_id, purpose,
	retention_policy, contains_personal_data, gdpr_legal_basis,
	status, payload_kind, payload, payload_hash, attachment, quarantine_reason,
	created_by, created_at, updated_at, sealed_at`

func scanDraft(row pgx.Row, d *domain.EvidenceDraft) error {
	var payload []byte
	err := row.Scan(
		&d.ID, &d.TenantID, &d.RequestID, &d.RequestHash,
		&d.IngestionMethod, &d.SourceSystem, &d.DatasetType, &d.DeclaredScope, &d.ScopeTargetID, &d.Purpose,
		&d.RetentionPolicy, &d.ContainsPersonalData, &d.GDPRLegalBasis,
		&d.Status, &d.PayloadKind, &payload, &d.PayloadHash, &d.Attachment, &d.QuarantineReason,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt, &d.SealedAt,
	)
	if err != nil {
		return err
	}
	d.Payload, err = decodePayload(payload)
	return err
}

// encodePayload renders a payload for the JSON column. Numbers decoded as
// json.Number are written back as the literal the client sent.
func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// decodePayload is the inverse of encodePayload. Plain json.Unmarshal would
// turn every number into a float64 and change the payload hash.
func decodePayload(b []byte) (map[string]any, error) {
	if b == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func (r *EvidenceRepo) CreateDraft(ctx context.Context, d *domain.EvidenceDraft, ev *domain.AuditEvent) error {
	payload, err := encodePayload(d.Payload)
	if err != nil {
		return fmt.Errorf("evidenceRepo.CreateDraft: %w", err)
	}
	err = inTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO evidence_drafts (`+draftColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
			d.ID, d.TenantID, d.RequestID, d.RequestHash,
			d.IngestionMethod, d.SourceSystem, d.DatasetType, d.DeclaredScope, d.ScopeTargetID, d.Purpose,
			d.RetentionPolicy, d.ContainsPersonalData, d.GDPRLegalBasis,
			d.Status, d.PayloadKind, payload, d.PayloadHash, d.Attachment, d.QuarantineReason,
			d.CreatedBy, d.CreatedAt, d.UpdatedAt, d.SealedAt,
		)
		if err != nil {
			return mapWriteErr(err)
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("evidenceRepo.CreateDraft: %w", err)
	}

	return nil
}

func (r *EvidenceRepo) GetDraft(ctx context.Context, tenantID, id uuid.UUID) (*domain.EvidenceDraft, error) {
	var d domain.EvidenceDraft

	err := scanDraft(r.pool.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM evidence_drafts WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evidenceRepo.GetDraft: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.GetDraft: %w", err)
	}

	return &d, nil
}

func (r *EvidenceRepo) GetDraftByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (*domain.EvidenceDraft, error) {
	var d domain.EvidenceDraft

	err := scanDraft(r.pool.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM evidence_drafts WHERE tenant_id = $1 AND request_id = $2`,
		tenantID, requestID,
	), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evidenceRepo.GetDraftByRequestID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.GetDraftByRequestID: %w", err)
	}

	return &d, nil
}

func (r *EvidenceRepo) ListDrafts(ctx context.Context, tenantID uuid.UUID, filter domain.DraftFilter) ([]*domain.EvidenceDraft, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+draftColumns+`
		 FROM evidence_drafts
		 WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		tenantID, string(filter.Status), limitOrAll(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.ListDrafts: %w", err)
	}
	defer rows.Close()

	var drafts []*domain.EvidenceDraft
	for rows.Next() {
		var d domain.EvidenceDraft
		if err = scanDraft(rows, &d); err != nil {
			return nil, fmt.Errorf("evidenceRepo.ListDrafts: scan: %w", err)
		}
		drafts = append(drafts, &d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("evidenceRepo.ListDrafts: rows: %w", err)
	}

	return drafts, nil
}

// draftWriteErr explains why a conditional draft update matched no row.
func draftWriteErr(ctx context.Context, q querier, tenantID, id uuid.UUID) error {
	var status domain.DraftStatus
	err := q.QueryRow(ctx,
		`SELECT status FROM evidence_drafts WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := status.WriteError(); err != nil {
		return err
	}
	// Still DRAFT: the row changed between the update and this read.
	return domain.ErrConflict
}

// updateOpenDraft writes the mutable fields of d if it is still DRAFT.
// Identity, status and creation fields are never written.
func updateOpenDraft(ctx context.Context, q querier, d *domain.EvidenceDraft) error {
	payload, err := encodePayload(d.Payload)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE evidence_drafts SET
		     ingestion_method = $1, source_system = $2, dataset_type = $3, declared_scope = $4,
		     scope_target_id = $5, purpose = $6, retention_policy = $7,
		     contains_personal_data = $8, gdpr_legal_basis = $9,
		     payload_kind = $10, payload = $11, payload_hash = $12, attachment = $13,
		     updated_at = $14
		 WHERE tenant_id = $15 AND id = $16 AND status = 'DRAFT'`,
		d.IngestionMethod, d.SourceSystem, d.DatasetType, d.DeclaredScope,
		d.ScopeTargetID, d.Purpose, d.RetentionPolicy,
		d.ContainsPersonalData, d.GDPRLegalBasis,
		d.PayloadKind, payload, d.PayloadHash, d.Attachment,
		d.UpdatedAt,
		d.TenantID, d.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return draftWriteErr(ctx, q, d.TenantID, d.ID)
	}
	return nil
}

func (r *EvidenceRepo) UpdateDraft(ctx context.Context, d *domain.EvidenceDraft, ev *domain.AuditEvent) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateOpenDraft(ctx, tx, d); err != nil {
			return err
		}
		// A draft without a file payload keeps no stored file.
		if d.PayloadKind != domain.PayloadFile {
			if _, err := tx.Exec(ctx,
				`DELETE FROM evidence_attachments WHERE tenant_id = $1 AND draft_id = $2`,
				d.TenantID, d.ID,
			); err != nil {
				return err
			}
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("evidenceRepo.UpdateDraft: %w", err)
	}

	return nil
}

// --- Attachments ---

func (r *EvidenceRepo) PutAttachment(ctx context.Context, d *domain.EvidenceDraft, att *domain.Attachment, ev *domain.AuditEvent) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateOpenDraft(ctx, tx, d); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO evidence_attachments
			     (draft_id, tenant_id, file_name, content_type, size_bytes, sha256, content, encrypted, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (draft_id) DO UPDATE SET
			     file_name = EXCLUDED.file_name, content_type = EXCLUDED.content_type,
			     size_bytes = EXCLUDED.size_bytes, sha256 = EXCLUDED.sha256,
			     content = EXCLUDED.content, encrypted = EXCLUDED.encrypted,
			     created_at = EXCLUDED.created_at`,
			d.ID, att.TenantID, att.Info.FileName, att.Info.ContentType, att.Info.SizeBytes,
			att.Info.SHA256, att.Content, att.Encrypted, att.CreatedAt,
		)
		if err != nil {
			return err
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("evidenceRepo.PutAttachment: %w", err)
	}

	return nil
}

func (r *EvidenceRepo) GetAttachment(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.Attachment, error) {
	var att domain.Attachment

	err := r.pool.QueryRow(ctx,
		`SELECT draft_id, tenant_id, file_name, content_type, size_bytes, sha256, content, encrypted, created_at
		 FROM evidence_attachments WHERE tenant_id = $1 AND draft_id = $2`,
		tenantID, draftID,
	).Scan(&att.DraftID, &att.TenantID, &att.Info.FileName, &att.Info.ContentType, &att.Info.SizeBytes,
		&att.Info.SHA256, &att.Content, &att.Encrypted, &att.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evidenceRepo.GetAttachment: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.GetAttachment: %w", err)
	}

	return &att, nil
}

func (r *EvidenceRepo) QuarantineDraft(ctx context.Context, tenantID, id uuid.UUID, reason string, at time.Time, ev *domain.AuditEvent) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE evidence_drafts SET status = 'QUARANTINED', quarantine_reason = $1, updated_at = $2
			 WHERE tenant_id = $3 AND id = $4 AND status = 'DRAFT'`,
			reason, at, tenantID, id,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return draftWriteErr(ctx, tx, tenantID, id)
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("evidenceRepo.QuarantineDraft: %w", err)
	}

	return nil
}

// --- Sealing ---

// Seal claims the draft with a conditional update, so the row lock taken by
// the first sealer makes every concurrent caller see a non-DRAFT status.
func (r *EvidenceRepo) Seal(ctx context.Context, c *domain.SealCommit) error {
	rec := c.Record
	if !rec.LedgerState.ValidTransition(domain.LedgerSealed) {
		return fmt.Errorf("evidenceRepo.Seal: ledger state %s: %w", rec.LedgerState, domain.ErrConflict)
	}

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE evidence_drafts SET status = 'SEALED', sealed_at = $1, updated_at = $1
			 WHERE tenant_id = $2 AND id = $3 AND status = 'DRAFT'`,
			c.SealedAt, c.TenantID, c.DraftID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return draftWriteErr(ctx, tx, c.TenantID, c.DraftID)
		}

		if err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
		tag, err = tx.Exec(ctx,
			`UPDATE evidence_records SET ledger_state = $1
			 WHERE tenant_id = $2 AND id = $3 AND ledger_state = $4`,
			domain.LedgerSealed, rec.TenantID, rec.ID, domain.LedgerIngested,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConflict
		}

		if err := insertAuditEvents(ctx, tx, c.Events...); err != nil {
			return err
		}
		if c.WorkItem != nil {
			if err := insertWorkItem(ctx, tx, c.WorkItem); err != nil {
				return err
			}
			return insertAuditEvents(ctx, tx, c.WorkItemEvent)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("evidenceRepo.Seal: %w", err)
	}

	rec.LedgerState = domain.LedgerSealed
	return nil
}

// --- Records ---

const recordColumns = `id, tenant_id, draft_id, display_id,
	ingestion_method, source_system, dataset_type, declared_scope, scope_target_id, purpose,
	retention_policy, contains_personal_data, gdpr_legal_basis,
	payload_kind, payload, attachment, payload_hash, metadata_hash,
	trust_level, review_status, ledger_state, retention_ends_at, seal_command_id,
	created_by, attestor_user_id, attested_by_email, attestation_method, attested_at_utc, created_at`

func insertRecord(ctx context.Context, q querier, rec *domain.EvidenceRecord) error {
	payload, err := encodePayload(rec.Payload)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx,
		`INSERT INTO evidence_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
		rec.ID, rec.TenantID, rec.DraftID, rec.DisplayID,
		rec.IngestionMethod, rec.SourceSystem, rec.DatasetType, rec.DeclaredScope, rec.ScopeTargetID, rec.Purpose,
		rec.RetentionPolicy, rec.ContainsPersonalData, rec.GDPRLegalBasis,
		rec.PayloadKind, payload, rec.Attachment, rec.PayloadHash, rec.MetadataHash,
		rec.TrustLevel, rec.ReviewStatus, rec.LedgerState, rec.RetentionEndsAt, rec.SealCommandID,
		rec.CreatedBy, rec.AttestorUserID, rec.AttestedByEmail, rec.AttestationMethod, rec.AttestedAtUTC, rec.CreatedAt,
	)
	return mapWriteErr(err)
}

func scanRecord(row pgx.Row, rec *domain.EvidenceRecord) error {
	var payload []byte
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.DraftID, &rec.DisplayID,
		&rec.IngestionMethod, &rec.SourceSystem, &rec.DatasetType, &rec.DeclaredScope, &rec.ScopeTargetID, &rec.Purpose,
		&rec.RetentionPolicy, &rec.ContainsPersonalData, &rec.GDPRLegalBasis,
		&rec.PayloadKind, &payload, &rec.Attachment, &rec.PayloadHash, &rec.MetadataHash,
		&rec.TrustLevel, &rec.ReviewStatus, &rec.LedgerState, &rec.RetentionEndsAt, &rec.SealCommandID,
		&rec.CreatedBy, &rec.AttestorUserID, &rec.AttestedByEmail, &rec.AttestationMethod, &rec.AttestedAtUTC, &rec.CreatedAt,
	)
	if err != nil {
		return err
	}
	rec.Payload, err = decodePayload(payload)
	return err
}

func (r *EvidenceRepo) GetRecord(ctx context.Context, tenantID, id uuid.UUID) (*domain.EvidenceRecord, error) {
	var rec domain.EvidenceRecord

	err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM evidence_records WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	), &rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evidenceRepo.GetRecord: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.GetRecord: %w", err)
	}

	return &rec, nil
}

func (r *EvidenceRepo) GetRecordByDraft(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.EvidenceRecord, error) {
	var rec domain.EvidenceRecord

	err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM evidence_records WHERE tenant_id = $1 AND draft_id = $2`,
		tenantID, draftID,
	), &rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("evidenceRepo.GetRecordByDraft: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.GetRecordByDraft: %w", err)
	}

	return &rec, nil
}

// FindRecords returns the tenant's records matching filter, newest first.
// Ids belonging to another tenant simply match nothing.
func (r *EvidenceRepo) FindRecords(ctx context.Context, tenantID uuid.UUID, filter domain.RecordFilter) ([]*domain.EvidenceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM evidence_records
		 WHERE tenant_id = $1
		   AND ($2::uuid IS NULL OR id = $2)
		   AND ($3 = '' OR display_id = $3)
		   AND ($4 = '' OR dataset_type = $4)
		   AND ($5::uuid IS NULL OR draft_id = $5)
		 ORDER BY created_at DESC, id
		 LIMIT $6 OFFSET $7`,
		tenantID, filter.ID, filter.DisplayID, string(filter.DatasetType), filter.DraftID,
		limitOrAll(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("evidenceRepo.FindRecords: %w", err)
	}
	defer rows.Close()

	var records []*domain.EvidenceRecord
	for rows.Next() {
		var rec domain.EvidenceRecord
		if err = scanRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("evidenceRepo.FindRecords: scan: %w", err)
		}
		records = append(records, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("evidenceRepo.FindRecords: rows: %w", err)
	}

	return records, nil
}

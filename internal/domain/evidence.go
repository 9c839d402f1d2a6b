package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IngestionMethod string

const (
	MethodManualEntry IngestionMethod = "MANUAL_ENTRY"
	MethodFileUpload  IngestionMethod = "FILE_UPLOAD"
	MethodAPIPush     IngestionMethod = "API_PUSH"
	MethodERPExport   IngestionMethod = "ERP_EXPORT"
	MethodERPAPI      IngestionMethod = "ERP_API"
)

func (m IngestionMethod) Valid() bool {
	switch m {
	case MethodManualEntry, MethodFileUpload, MethodAPIPush, MethodERPExport, MethodERPAPI:
		return true
	default:
		return false
	}
}

// TrustLevel derives the trust level of evidence ingested through m.
func (m IngestionMethod) TrustLevel() TrustLevel {
	switch m {
	case MethodERPExport, MethodERPAPI:
		return TrustHigh
	case MethodFileUpload, MethodAPIPush:
		return TrustMedium
	default:
		return TrustLow
	}
}

// Source systems assigned by the server.
const (
	SourceSystemInternalManual = "INTERNAL_MANUAL"
	SourceSystemUserUpload     = "USER_UPLOAD"
)

type DatasetType string

const (
	DatasetSupplierMaster    DatasetType = "SUPPLIER_MASTER"
	DatasetProductMaster     DatasetType = "PRODUCT_MASTER"
	DatasetBOM               DatasetType = "BOM"
	DatasetCertificate       DatasetType = "CERTIFICATE"
	DatasetTestReport        DatasetType = "TEST_REPORT"
	DatasetTransactionLog    DatasetType = "TRANSACTION_LOG"
	DatasetEmissionsData     DatasetType = "EMISSIONS_DATA"
	DatasetEnergyConsumption DatasetType = "ENERGY_CONSUMPTION"
	DatasetOther             DatasetType = "OTHER"
)

func (d DatasetType) Valid() bool {
	switch d {
	case DatasetSupplierMaster, DatasetProductMaster, DatasetBOM, DatasetCertificate,
		DatasetTestReport, DatasetTransactionLog, DatasetEmissionsData,
		DatasetEnergyConsumption, DatasetOther:
		return true
	default:
		return false
	}
}

// CompatibleWith reports whether datasets of type d may be ingested through m.
// Certificates and transaction logs cannot be typed in by hand.
func (d DatasetType) CompatibleWith(m IngestionMethod) bool {
	if m != MethodManualEntry {
		return true
	}
	return d != DatasetCertificate && d != DatasetTransactionLog
}

type DeclaredScope string

const (
	ScopeEntireOrganization DeclaredScope = "ENTIRE_ORGANIZATION"
	ScopeLegalEntity        DeclaredScope = "LEGAL_ENTITY"
	ScopeSite               DeclaredScope = "SITE"
	ScopeProductFamily      DeclaredScope = "PRODUCT_FAMILY"
	ScopeUnknown            DeclaredScope = "UNKNOWN"
)

func (s DeclaredScope) Valid() bool {
	switch s {
	case ScopeEntireOrganization, ScopeLegalEntity, ScopeSite, ScopeProductFamily, ScopeUnknown:
		return true
	default:
		return false
	}
}

// RequiresTarget reports whether the scope must name a target entity.
func (s DeclaredScope) RequiresTarget() bool {
	return s == ScopeLegalEntity || s == ScopeSite || s == ScopeProductFamily
}

type RetentionPolicy string

const (
	RetentionOneYear        RetentionPolicy = "STANDARD_1_YEAR"
	RetentionSevenYears     RetentionPolicy = "STANDARD_7_YEARS"
	RetentionTenYears       RetentionPolicy = "STANDARD_10_YEARS"
	RetentionCBAMRegulatory RetentionPolicy = "CBAM_REGULATORY"
	RetentionLegalHold      RetentionPolicy = "LEGAL_HOLD"
)

// DefaultRetentionPolicy applies when a draft declares none.
const DefaultRetentionPolicy = RetentionSevenYears

func (p RetentionPolicy) Valid() bool {
	switch p {
	case RetentionOneYear, RetentionSevenYears, RetentionTenYears, RetentionCBAMRegulatory, RetentionLegalHold:
		return true
	default:
		return false
	}
}

// EndsAt returns the retention end for evidence sealed at sealedAt.
// LEGAL_HOLD has no end and returns nil.
func (p RetentionPolicy) EndsAt(sealedAt time.Time) *time.Time {
	var years int
	switch p {
	case RetentionOneYear:
		years = 1
	case RetentionSevenYears:
		years = 7
	case RetentionTenYears:
		years = 10
	case RetentionCBAMRegulatory:
		years = 4
	default:
		return nil
	}
	end := sealedAt.UTC().AddDate(years, 0, 0)
	return &end
}

type DraftStatus string

const (
	DraftOpen        DraftStatus = "DRAFT"
	DraftSealed      DraftStatus = "SEALED"
	DraftQuarantined DraftStatus = "QUARANTINED"
)

// ValidTransition checks if a draft state transition is allowed.
// Allowed: DRAFT->SEALED, DRAFT->QUARANTINED. Both targets are terminal.
func (s DraftStatus) ValidTransition(to DraftStatus) bool {
	return s == DraftOpen && (to == DraftSealed || to == DraftQuarantined)
}

// WriteError returns the error a write against a draft in status s reports,
// or nil if the draft is still open.
func (s DraftStatus) WriteError() error {
	switch s {
	case DraftOpen:
		return nil
	case DraftSealed:
		return ErrSealed
	case DraftQuarantined:
		return ErrQuarantined
	default:
		return ErrConflict
	}
}

type LedgerState string

const (
	LedgerIngested LedgerState = "INGESTED"
	LedgerSealed   LedgerState = "SEALED"
)

// ValidTransition checks if a ledger state transition is allowed.
// Allowed: INGESTED->SEALED.
func (s LedgerState) ValidTransition(to LedgerState) bool {
	return s == LedgerIngested && to == LedgerSealed
}

type TrustLevel string

const (
	TrustLow    TrustLevel = "LOW"
	TrustMedium TrustLevel = "MEDIUM"
	TrustHigh   TrustLevel = "HIGH"
)

type ReviewStatus string

const (
	ReviewNotReviewed ReviewStatus = "NOT_REVIEWED"
	ReviewReviewed    ReviewStatus = "REVIEWED"
	ReviewDisputed    ReviewStatus = "DISPUTED"
)

type PayloadKind string

const (
	PayloadNone PayloadKind = "NONE"
	PayloadJSON PayloadKind = "JSON"
	PayloadFile PayloadKind = "FILE"
)

// AttachmentInfo describes an uploaded file. SHA256 is always computed by the server.
type AttachmentInfo struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
}

// Attachment holds the stored bytes of a draft's uploaded file.
type Attachment struct {
	TenantID  uuid.UUID
	DraftID   uuid.UUID
	Info      AttachmentInfo
	Content   []byte
	Encrypted bool
	CreatedAt time.Time
}

// EvidenceMetadata is the declared metadata shared by drafts and sealed records.
type EvidenceMetadata struct {
	IngestionMethod      IngestionMethod `json:"ingestion_method"`
	SourceSystem         string          `json:"source_system"`
	DatasetType          DatasetType     `json:"dataset_type"`
	DeclaredScope        DeclaredScope   `json:"declared_scope"`
	ScopeTargetID        string          `json:"scope_target_id,omitempty"`
	Purpose              string          `json:"purpose"`
	RetentionPolicy      RetentionPolicy `json:"retention_policy"`
	ContainsPersonalData bool            `json:"contains_personal_data"`
	GDPRLegalBasis       string          `json:"gdpr_legal_basis,omitempty"`
}

// EvidenceDraft is a mutable, pre-seal container of declared metadata and an
// optional payload.
type EvidenceDraft struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	RequestID   string
	RequestHash string
	EvidenceMetadata
	Status           DraftStatus
	PayloadKind      PayloadKind
	Payload          map[string]any
	PayloadHash      string
	Attachment       *AttachmentInfo
	QuarantineReason string
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SealedAt         *time.Time
}

// HasPayload reports whether a payload has been attached.
func (d *EvidenceDraft) HasPayload() bool {
	return d.PayloadKind == PayloadJSON || d.PayloadKind == PayloadFile
}

// EvidenceRecord is an immutable, hashed, attested record produced by sealing.
type EvidenceRecord struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	DraftID   uuid.UUID
	DisplayID string
	EvidenceMetadata
	PayloadKind       PayloadKind
	Payload           map[string]any
	Attachment        *AttachmentInfo
	PayloadHash       string
	MetadataHash      string
	TrustLevel        TrustLevel
	ReviewStatus      ReviewStatus
	LedgerState       LedgerState
	RetentionEndsAt   *time.Time
	SealCommandID     string
	CreatedBy         uuid.UUID
	AttestorUserID    uuid.UUID
	AttestedByEmail   string
	AttestationMethod string
	AttestedAtUTC     time.Time
	CreatedAt         time.Time
}

// DisplayID formats the human-facing identifier EV-YYYYMMDD-XXXXXXXX.
func DisplayID(id uuid.UUID, sealedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return fmt.Sprintf("EV-%s-%s", sealedAt.UTC().Format("20060102"), suffix)
}

// DraftFilter narrows a draft listing. Zero values mean "any".
type DraftFilter struct {
	Status DraftStatus
	Limit  int
	Offset int
}

// RecordFilter narrows an evidence query. Zero values mean "any".
type RecordFilter struct {
	ID          *uuid.UUID
	DisplayID   string
	DatasetType DatasetType
	DraftID     *uuid.UUID
	Limit       int
	Offset      int
}

// SealCommit is everything written atomically when a draft is sealed.
type SealCommit struct {
	TenantID uuid.UUID
	DraftID  uuid.UUID
	SealedAt time.Time
	Record   *EvidenceRecord
	Events   []*AuditEvent
	// WorkItem and its event are optional.
	WorkItem      *WorkItem
	WorkItemEvent *AuditEvent
}

type EvidenceRepository interface {
	// CreateDraft returns ErrDuplicate if (tenant, request id) already exists.
	CreateDraft(ctx context.Context, d *EvidenceDraft, ev *AuditEvent) error
	GetDraft(ctx context.Context, tenantID, id uuid.UUID) (*EvidenceDraft, error)
	GetDraftByRequestID(ctx context.Context, tenantID uuid.UUID, requestID string) (*EvidenceDraft, error)
	ListDrafts(ctx context.Context, tenantID uuid.UUID, filter DraftFilter) ([]*EvidenceDraft, error)
	// UpdateDraft writes metadata and payload fields of an open draft. Returns
	// ErrSealed or ErrQuarantined if the draft left DRAFT concurrently.
	UpdateDraft(ctx context.Context, d *EvidenceDraft, ev *AuditEvent) error
	// PutAttachment stores file bytes and updates the draft in one step.
	PutAttachment(ctx context.Context, d *EvidenceDraft, att *Attachment, ev *AuditEvent) error
	GetAttachment(ctx context.Context, tenantID, draftID uuid.UUID) (*Attachment, error)
	QuarantineDraft(ctx context.Context, tenantID, id uuid.UUID, reason string, at time.Time, ev *AuditEvent) error
	// Seal flips the draft to SEALED and inserts the record, its events and the
	// optional work item. Exactly one concurrent caller succeeds; the others get
	// ErrSealed (or ErrQuarantined).
	Seal(ctx context.Context, c *SealCommit) error
	GetRecord(ctx context.Context, tenantID, id uuid.UUID) (*EvidenceRecord, error)
	GetRecordByDraft(ctx context.Context, tenantID, draftID uuid.UUID) (*EvidenceRecord, error)
	FindRecords(ctx context.Context, tenantID uuid.UUID, filter RecordFilter) ([]*EvidenceRecord, error)
}

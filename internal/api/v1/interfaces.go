package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Tenants() domain.TenantRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, tenantID uuid.UUID, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, tenantID uuid.UUID, email, password string) (*auth.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// AdminService covers user and API key administration.
// *auth.Service satisfies this interface.
type AdminService interface {
	SetRole(ctx context.Context, tenantID, userID uuid.UUID, role string) (*domain.User, error)
	GenerateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (string, *domain.APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, tenantID, id uuid.UUID) error
}

// EvidenceService is the sealing protocol as seen by the handlers.
// *evidence.Service satisfies this interface.
type EvidenceService interface {
	CreateDraft(ctx context.Context, actor domain.Actor, req evidence.CreateRequest) (*domain.EvidenceDraft, bool, error)
	GetDraft(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.EvidenceDraft, error)
	ListDrafts(ctx context.Context, actor domain.Actor, filter domain.DraftFilter) ([]*domain.EvidenceDraft, error)
	UpdateDraft(ctx context.Context, actor domain.Actor, id uuid.UUID, patch evidence.DraftPatch) (*domain.EvidenceDraft, error)
	AttachPayload(ctx context.Context, actor domain.Actor, id uuid.UUID, value any, raw string) (*domain.EvidenceDraft, error)
	AttachFile(ctx context.Context, actor domain.Actor, id uuid.UUID, file evidence.FileUpload) (*domain.EvidenceDraft, error)
	GetAttachment(ctx context.Context, actor domain.Actor, draftID uuid.UUID) (*domain.Attachment, error)
	SealDraft(ctx context.Context, actor domain.Actor, id uuid.UUID, commandID string) (*domain.EvidenceRecord, bool, error)
	GetRecord(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.EvidenceRecord, error)
	FindRecords(ctx context.Context, actor domain.Actor, filter domain.RecordFilter) ([]*domain.EvidenceRecord, error)
	UpdateRecord(ctx context.Context, actor domain.Actor, id uuid.UUID) error
	CreateWorkItem(ctx context.Context, actor domain.Actor, in evidence.WorkItemInput) (*domain.WorkItem, error)
	GetWorkItem(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.WorkItem, error)
	ListWorkItems(ctx context.Context, actor domain.Actor, status domain.WorkItemStatus, limit, offset int) ([]*domain.WorkItem, error)
	ResolveWorkItem(ctx context.Context, actor domain.Actor, id uuid.UUID, resolution string) (*domain.WorkItem, error)
	ListAuditEvents(ctx context.Context, actor domain.Actor, filter domain.AuditFilter) ([]*domain.AuditEvent, error)
}

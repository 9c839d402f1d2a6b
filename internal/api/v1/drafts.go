package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
	"github.com/gosuda/evidra/internal/server/middleware"
)

// Limits bound request bodies on the evidence routes.
type Limits struct {
	MaxPayloadBytes int
	MaxFileBytes    int64
}

// bodyOverhead covers JSON framing and metadata around a payload or file.
const bodyOverhead = 64 << 10

func (l Limits) payloadBody() int64 {
	// A payload may arrive both as a JSON value and as escaped text.
	return int64(l.MaxPayloadBytes)*2 + bodyOverhead
}

func (l Limits) fileBody() int64 {
	// Files travel base64 encoded.
	return l.MaxFileBytes/3*4 + 4 + bodyOverhead
}

// actorFrom returns the authenticated actor or a FORBIDDEN problem.
func actorFrom(ctx context.Context) (domain.Actor, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, reject(ctx, domain.CodeForbidden, "missing tenant context")
	}
	return actor, nil
}

type CreateDraftInput struct {
	Body struct {
		RequestID            string          `json:"request_id,omitempty" maxLength:"200" doc:"Idempotency key, unique per tenant"`
		CommandID            string          `json:"command_id,omitempty" maxLength:"200" doc:"Alias of request_id"`
		IngestionMethod      string          `json:"ingestion_method,omitempty" doc:"MANUAL_ENTRY, FILE_UPLOAD, API_PUSH, ERP_EXPORT or ERP_API"`
		SourceSystem         string          `json:"source_system,omitempty" maxLength:"200" doc:"Originating system; forced for manual entry"`
		DatasetType          string          `json:"dataset_type,omitempty" doc:"Dataset type"`
		DeclaredScope        string          `json:"declared_scope,omitempty" doc:"Declared scope"`
		ScopeTargetID        string          `json:"scope_target_id,omitempty" maxLength:"200" doc:"Target of a LEGAL_ENTITY, SITE or PRODUCT_FAMILY scope"`
		Purpose              string          `json:"purpose,omitempty" maxLength:"2000" doc:"Why this evidence is collected"`
		RetentionPolicy      string          `json:"retention_policy,omitempty" doc:"Defaults to STANDARD_7_YEARS"`
		ContainsPersonalData bool            `json:"contains_personal_data,omitempty" doc:"Whether the payload holds personal data"`
		GDPRLegalBasis       string          `json:"gdpr_legal_basis,omitempty" maxLength:"500" doc:"Required when contains_personal_data is set"`
		Payload              json.RawMessage `json:"payload,omitempty" doc:"Optional JSON object payload"`
		PayloadBytes         string          `json:"payload_bytes,omitempty" doc:"Optional payload as JSON text"`
	}
}

// payloadText hands the gate the payload as the client wrote it, so numbers
// are hashed from their literal text. payload_bytes wins when both are set.
func payloadText(inline json.RawMessage, text string) string {
	if text != "" {
		return text
	}
	trimmed := bytes.TrimSpace(inline)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}

type CreateDraftOutput struct {
	Status int
	Body   struct {
		Draft    DraftView `json:"draft"`
		Replayed bool      `json:"replayed" doc:"True when an identical earlier request was returned"`
	}
}

type ListDraftsInput struct {
	Status string `query:"status" enum:"DRAFT,SEALED,QUARANTINED" doc:"Filter by status"`
	Limit  int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListDraftsOutput struct {
	Body []DraftView
}

type DraftIDInput struct {
	ID uuid.UUID `path:"id" doc:"Draft ID"`
}

type DraftOutput struct {
	Body DraftView
}

type UpdateDraftInput struct {
	ID   uuid.UUID `path:"id" doc:"Draft ID"`
	Body struct {
		SourceSystem         *string `json:"source_system,omitempty" maxLength:"200"`
		DeclaredScope        *string `json:"declared_scope,omitempty"`
		ScopeTargetID        *string `json:"scope_target_id,omitempty" maxLength:"200"`
		Purpose              *string `json:"purpose,omitempty" maxLength:"2000"`
		RetentionPolicy      *string `json:"retention_policy,omitempty"`
		ContainsPersonalData *bool   `json:"contains_personal_data,omitempty"`
		GDPRLegalBasis       *string `json:"gdpr_legal_basis,omitempty" maxLength:"500"`
	}
}

type AttachPayloadInput struct {
	ID   uuid.UUID `path:"id" doc:"Draft ID"`
	Body struct {
		Payload      json.RawMessage `json:"payload,omitempty" doc:"JSON object payload"`
		PayloadBytes string          `json:"payload_bytes,omitempty" doc:"Payload as JSON text"`
	}
}

type AttachFileInput struct {
	ID   uuid.UUID `path:"id" doc:"Draft ID"`
	Body struct {
		FileName    string `json:"file_name" minLength:"1" maxLength:"255" doc:"Original file name"`
		ContentType string `json:"content_type,omitempty" maxLength:"255" doc:"MIME type"`
		Content     []byte `json:"content" doc:"File bytes, base64 encoded"`
	}
}

type AttachmentOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	ContentSHA256      string `header:"X-Content-SHA256"`
	Body               []byte
}

type SealDraftInput struct {
	ID   uuid.UUID `path:"id" doc:"Draft ID"`
	Body *struct {
		CommandID string `json:"command_id,omitempty" maxLength:"200" doc:"Repeat with the same id to replay a successful seal"`
	}
}

type SealDraftOutput struct {
	Status int
	Body   struct {
		EvidenceID   uuid.UUID          `json:"evidence_id"`
		DisplayID    string             `json:"display_id"`
		PayloadHash  string             `json:"payload_hash"`
		MetadataHash string             `json:"metadata_hash"`
		LedgerState  domain.LedgerState `json:"ledger_state"`
		Replayed     bool               `json:"replayed"`
		Record       RecordView         `json:"record"`
	}
}

func RegisterDraftRoutes(api huma.API, svc EvidenceService, limits Limits) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-draft",
		Method:        http.MethodPost,
		Path:          "/drafts",
		Summary:       "Create an evidence draft",
		Description:   "Runs the validation gate. Repeating a request_id with the same request returns the existing draft with status 200.",
		Tags:          []string{"Drafts"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  limits.payloadBody(),
	}, func(ctx context.Context, input *CreateDraftInput) (*CreateDraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		b := input.Body
		d, replayed, err := svc.CreateDraft(ctx, actor, evidence.CreateRequest{
			RequestID:            b.RequestID,
			CommandID:            b.CommandID,
			IngestionMethod:      b.IngestionMethod,
			SourceSystem:         b.SourceSystem,
			DatasetType:          b.DatasetType,
			DeclaredScope:        b.DeclaredScope,
			ScopeTargetID:        b.ScopeTargetID,
			Purpose:              b.Purpose,
			RetentionPolicy:      b.RetentionPolicy,
			ContainsPersonalData: b.ContainsPersonalData,
			GDPRLegalBasis:       b.GDPRLegalBasis,
			PayloadBytes:         payloadText(b.Payload, b.PayloadBytes),
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		out := &CreateDraftOutput{Status: http.StatusCreated}
		if replayed {
			out.Status = http.StatusOK
		}
		out.Body.Draft = newDraftView(d)
		out.Body.Replayed = replayed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/drafts",
		Summary:     "List drafts",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *ListDraftsInput) (*ListDraftsOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		drafts, err := svc.ListDrafts(ctx, actor, domain.DraftFilter{
			Status: domain.DraftStatus(input.Status),
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &ListDraftsOutput{Body: mapViews(drafts, newDraftView)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draft",
		Method:      http.MethodGet,
		Path:        "/drafts/{id}",
		Summary:     "Get a draft by ID",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *DraftIDInput) (*DraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		d, err := svc.GetDraft(ctx, actor, input.ID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &DraftOutput{Body: newDraftView(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-draft",
		Method:      http.MethodPatch,
		Path:        "/drafts/{id}",
		Summary:     "Update draft metadata",
		Description: "Ingestion method and dataset type are fixed at creation.",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *UpdateDraftInput) (*DraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		b := input.Body
		d, err := svc.UpdateDraft(ctx, actor, input.ID, evidence.DraftPatch{
			SourceSystem:         b.SourceSystem,
			DeclaredScope:        b.DeclaredScope,
			ScopeTargetID:        b.ScopeTargetID,
			Purpose:              b.Purpose,
			RetentionPolicy:      b.RetentionPolicy,
			ContainsPersonalData: b.ContainsPersonalData,
			GDPRLegalBasis:       b.GDPRLegalBasis,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &DraftOutput{Body: newDraftView(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "attach-payload",
		Method:       http.MethodPost,
		Path:         "/drafts/{id}/payload",
		Summary:      "Attach a JSON payload to a draft",
		Tags:         []string{"Drafts"},
		MaxBodyBytes: limits.payloadBody(),
	}, func(ctx context.Context, input *AttachPayloadInput) (*DraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		d, err := svc.AttachPayload(ctx, actor, input.ID, nil, payloadText(input.Body.Payload, input.Body.PayloadBytes))
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &DraftOutput{Body: newDraftView(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "attach-file",
		Method:       http.MethodPost,
		Path:         "/drafts/{id}/file",
		Summary:      "Attach a file to a draft",
		Description:  "JSON and YAML files become the structured payload; other files are referenced by hash.",
		Tags:         []string{"Drafts"},
		MaxBodyBytes: limits.fileBody(),
	}, func(ctx context.Context, input *AttachFileInput) (*DraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		d, err := svc.AttachFile(ctx, actor, input.ID, evidence.FileUpload{
			FileName:    input.Body.FileName,
			ContentType: input.Body.ContentType,
			Content:     input.Body.Content,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &DraftOutput{Body: newDraftView(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-draft-file",
		Method:      http.MethodGet,
		Path:        "/drafts/{id}/file",
		Summary:     "Download a draft's attached file",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *DraftIDInput) (*AttachmentOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		att, err := svc.GetAttachment(ctx, actor, input.ID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		contentType := att.Info.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &AttachmentOutput{
			ContentType:        contentType,
			ContentDisposition: `attachment; filename="` + safeFileName(att.Info.FileName) + `"`,
			ContentSHA256:      att.Info.SHA256,
			Body:               att.Content,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "seal-draft",
		Method:      http.MethodPost,
		Path:        "/drafts/{id}/seal",
		Summary:     "Seal a draft into an immutable evidence record",
		Description: "Hashes and attestation are computed server side. A second seal returns 409 SEALED_IMMUTABLE unless it repeats the winning command_id.",
		Tags:        []string{"Drafts"},
	}, func(ctx context.Context, input *SealDraftInput) (*SealDraftOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		var commandID string
		if input.Body != nil {
			commandID = input.Body.CommandID
		}

		rec, replayed, err := svc.SealDraft(ctx, actor, input.ID, commandID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		out := &SealDraftOutput{Status: http.StatusCreated}
		if replayed {
			out.Status = http.StatusOK
		}
		out.Body.EvidenceID = rec.ID
		out.Body.DisplayID = rec.DisplayID
		out.Body.PayloadHash = rec.PayloadHash
		out.Body.MetadataHash = rec.MetadataHash
		out.Body.LedgerState = rec.LedgerState
		out.Body.Replayed = replayed
		out.Body.Record = newRecordView(rec)
		return out, nil
	})
}

// safeFileName strips characters that would break a quoted header value.
func safeFileName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return "attachment"
	}
	return string(out)
}

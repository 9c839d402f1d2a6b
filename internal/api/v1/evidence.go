package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

type ListRecordsInput struct {
	ID          string `query:"id" doc:"Evidence ID"`
	DisplayID   string `query:"display_id" doc:"Human readable ID, e.g. EV-20260101-1a2b3c4d"`
	DatasetType string `query:"dataset_type" doc:"Filter by dataset type"`
	DraftID     string `query:"draft_id" doc:"Filter by source draft"`
	Limit       int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset      int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListRecordsOutput struct {
	Body []RecordView
}

type RecordIDInput struct {
	ID uuid.UUID `path:"id" doc:"Evidence ID"`
}

type RecordOutput struct {
	Body RecordView
}

type UpdateRecordInput struct {
	ID      uuid.UUID `path:"id" doc:"Evidence ID"`
	RawBody []byte
}

// parseOptionalID parses a query filter. ok is false when the value is set
// but cannot name any record.
func parseOptionalID(raw string) (id *uuid.UUID, ok bool) {
	if raw == "" {
		return nil, true
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

func RegisterEvidenceRoutes(api huma.API, svc EvidenceService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-evidence",
		Method:      http.MethodGet,
		Path:        "/evidence",
		Summary:     "Find sealed evidence records",
		Tags:        []string{"Evidence"},
	}, func(ctx context.Context, input *ListRecordsInput) (*ListRecordsOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		id, idOK := parseOptionalID(input.ID)
		draftID, draftOK := parseOptionalID(input.DraftID)
		if !idOK || !draftOK {
			// A malformed id matches nothing.
			return &ListRecordsOutput{Body: []RecordView{}}, nil
		}

		records, err := svc.FindRecords(ctx, actor, domain.RecordFilter{
			ID:          id,
			DisplayID:   input.DisplayID,
			DatasetType: domain.DatasetType(input.DatasetType),
			DraftID:     draftID,
			Limit:       input.Limit,
			Offset:      input.Offset,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &ListRecordsOutput{Body: mapViews(records, newRecordView)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evidence",
		Method:      http.MethodGet,
		Path:        "/evidence/{id}",
		Summary:     "Get an evidence record by ID",
		Tags:        []string{"Evidence"},
	}, func(ctx context.Context, input *RecordIDInput) (*RecordOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		rec, err := svc.GetRecord(ctx, actor, input.ID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &RecordOutput{Body: newRecordView(rec)}, nil
	})

	// Records are immutable; the route answers SEALED_IMMUTABLE instead of 405.
	huma.Register(api, huma.Operation{
		OperationID: "update-evidence",
		Method:      http.MethodPatch,
		Path:        "/evidence/{id}",
		Summary:     "Reject modification of a sealed record",
		Tags:        []string{"Evidence"},
	}, func(ctx context.Context, input *UpdateRecordInput) (*RecordOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		return nil, problem(ctx, svc.UpdateRecord(ctx, actor, input.ID))
	})
}

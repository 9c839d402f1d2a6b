package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/evidra/internal/domain"
)

type ListAuditEventsInput struct {
	EntityType string `query:"entity_type" enum:"evidence_draft,evidence_record,work_item,registry_declaration" doc:"Filter by entity type"`
	EntityID   string `query:"entity_id" doc:"Filter by entity ID"`
	Limit      int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset     int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListAuditEventsOutput struct {
	Body []AuditEventView
}

func RegisterAuditRoutes(api huma.API, svc EvidenceService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/audit-events",
		Summary:     "List the tenant's audit trail, newest first",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListAuditEventsInput) (*ListAuditEventsOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		entityID, ok := parseOptionalID(input.EntityID)
		if !ok {
			return nil, problem(ctx, domain.NewFieldError(domain.CodeValidationFailed, "entity_id", "entity_id must be a UUID"))
		}

		events, err := svc.ListAuditEvents(ctx, actor, domain.AuditFilter{
			EntityType: input.EntityType,
			EntityID:   entityID,
			Limit:      input.Limit,
			Offset:     input.Offset,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &ListAuditEventsOutput{Body: mapViews(events, newAuditEventView)}, nil
	})
}

package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
)

type CreateWorkItemInput struct {
	Body struct {
		Type        string      `json:"type,omitempty" doc:"MAPPING_REVIEW, CONFLICT_RESOLUTION or EVIDENCE_REVIEW"`
		Priority    string      `json:"priority,omitempty" doc:"LOW, MEDIUM, HIGH or CRITICAL; defaults to MEDIUM"`
		Title       string      `json:"title,omitempty" maxLength:"500" doc:"Short summary"`
		Description string      `json:"description,omitempty" maxLength:"10000" doc:"Details for the reviewer"`
		EvidenceIDs []uuid.UUID `json:"evidence_ids,omitempty" maxItems:"100" doc:"Sealed records under review"`
	}
}

type WorkItemOutput struct {
	Body WorkItemView
}

type ListWorkItemsInput struct {
	Status string `query:"status" enum:"OPEN,RESOLVED" doc:"Filter by status"`
	Limit  int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListWorkItemsOutput struct {
	Body []WorkItemView
}

type WorkItemIDInput struct {
	ID uuid.UUID `path:"id" doc:"Work item ID"`
}

type ResolveWorkItemInput struct {
	ID   uuid.UUID `path:"id" doc:"Work item ID"`
	Body struct {
		Resolution string `json:"resolution,omitempty" maxLength:"10000" doc:"How the item was resolved"`
	}
}

func RegisterWorkItemRoutes(api huma.API, svc EvidenceService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-item",
		Method:        http.MethodPost,
		Path:          "/work-items",
		Summary:       "Open a review work item",
		Tags:          []string{"Work Items"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateWorkItemInput) (*WorkItemOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		w, err := svc.CreateWorkItem(ctx, actor, evidence.WorkItemInput{
			Type:        domain.WorkItemType(input.Body.Type),
			Priority:    domain.WorkItemPriority(input.Body.Priority),
			Title:       input.Body.Title,
			Description: input.Body.Description,
			EvidenceIDs: input.Body.EvidenceIDs,
		})
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &WorkItemOutput{Body: newWorkItemView(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-items",
		Method:      http.MethodGet,
		Path:        "/work-items",
		Summary:     "List work items",
		Tags:        []string{"Work Items"},
	}, func(ctx context.Context, input *ListWorkItemsInput) (*ListWorkItemsOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		items, err := svc.ListWorkItems(ctx, actor, domain.WorkItemStatus(input.Status), input.Limit, input.Offset)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &ListWorkItemsOutput{Body: mapViews(items, newWorkItemView)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item",
		Method:      http.MethodGet,
		Path:        "/work-items/{id}",
		Summary:     "Get a work item by ID",
		Tags:        []string{"Work Items"},
	}, func(ctx context.Context, input *WorkItemIDInput) (*WorkItemOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		w, err := svc.GetWorkItem(ctx, actor, input.ID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &WorkItemOutput{Body: newWorkItemView(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-work-item",
		Method:      http.MethodPost,
		Path:        "/work-items/{id}/resolve",
		Summary:     "Resolve an open work item",
		Tags:        []string{"Work Items"},
	}, func(ctx context.Context, input *ResolveWorkItemInput) (*WorkItemOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		w, err := svc.ResolveWorkItem(ctx, actor, input.ID, input.Body.Resolution)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &WorkItemOutput{Body: newWorkItemView(w)}, nil
	})
}

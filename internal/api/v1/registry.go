package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/registry"
)

// RegistryService runs CBAM registry actions.
// *registry.Service satisfies this interface.
type RegistryService interface {
	Handle(ctx context.Context, actor domain.Actor, action registry.Action) (*registry.Result, error)
}

type CBAMFranceInput struct {
	Body struct {
		Action      string               `json:"action,omitempty" doc:"validate or generate"`
		Declaration registry.Declaration `json:"declaration"`
	}
}

type CBAMFranceOutput struct {
	Body struct {
		Success       bool             `json:"success"`
		Action        string           `json:"action"`
		Valid         bool             `json:"valid"`
		Issues        []registry.Issue `json:"issues"`
		DeclarationID *uuid.UUID       `json:"declaration_id,omitempty"`
		XML           string           `json:"xml,omitempty"`
		SHA256        string           `json:"sha256,omitempty"`
		GeneratedAt   *time.Time       `json:"generated_at,omitempty"`
	}
}

func RegisterRegistryRoutes(api huma.API, svc RegistryService) {
	huma.Register(api, huma.Operation{
		OperationID: "cbam-fr-registry",
		Method:      http.MethodPost,
		Path:        "/registry/cbam-fr",
		Summary:     "Validate or generate a French CBAM declaration",
		Description: "Every evidence id must reference a sealed record of the caller's tenant.",
		Tags:        []string{"Registry"},
	}, func(ctx context.Context, input *CBAMFranceInput) (*CBAMFranceOutput, error) {
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, err
		}

		action, err := registry.ParseAction(input.Body.Action, input.Body.Declaration)
		if err != nil {
			return nil, problem(ctx, err)
		}

		res, err := svc.Handle(ctx, actor, action)
		if err != nil {
			return nil, problem(ctx, err)
		}

		out := &CBAMFranceOutput{}
		out.Body.Success = true
		out.Body.Action = res.Action
		out.Body.Valid = res.Valid
		out.Body.Issues = res.Issues
		if out.Body.Issues == nil {
			out.Body.Issues = []registry.Issue{}
		}
		if res.DeclarationID != uuid.Nil {
			id := res.DeclarationID
			at := res.GeneratedAt
			out.Body.DeclarationID = &id
			out.Body.XML = string(res.Document)
			out.Body.SHA256 = res.SHA256
			out.Body.GeneratedAt = &at
		}
		return out, nil
	})
}

package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/server/middleware"
)

type SetRoleInput struct {
	ID   uuid.UUID `path:"id" doc:"User ID"`
	Body struct {
		Role string `json:"role" enum:"admin,member,viewer" doc:"New role"`
	}
}

type UserOutput struct {
	Body UserView
}

type CreateAPIKeyInput struct {
	Body struct {
		Name      string     `json:"name" minLength:"1" maxLength:"255" doc:"Key label"`
		ExpiresAt *time.Time `json:"expires_at,omitempty" doc:"Optional expiry (RFC 3339)"`
	}
}

type CreateAPIKeyOutput struct {
	Body struct {
		Key    string     `json:"key" doc:"Raw key; shown only once"` //nolint:gosec // G117: key is returned exactly once
		APIKey APIKeyView `json:"api_key"`
	}
}

type ListAPIKeysOutput struct {
	Body []APIKeyView
}

type DeleteAPIKeyInput struct {
	ID uuid.UUID `path:"id" doc:"API key ID"`
}

func RegisterAdminRoutes(api huma.API, admin AdminService) {
	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPut,
		Path:        "/users/{id}/role",
		Summary:     "Change a user's role",
		Description: "Takes effect when the user next refreshes their token.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *SetRoleInput) (*UserOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		tenantID, _ := middleware.TenantIDFromContext(ctx)

		user, err := admin.SetRole(ctx, tenantID, input.ID, input.Body.Role)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, reject(ctx, domain.CodeNotFound, "user not found")
		case errors.Is(err, auth.ErrInvalidRole):
			return nil, reject(ctx, domain.CodeValidationFailed, "unknown role")
		case err != nil:
			return nil, problem(ctx, err)
		}

		return &UserOutput{Body: newUserView(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the calling user",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateAPIKeyInput) (*CreateAPIKeyOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actor, _ := middleware.ActorFromContext(ctx)

		raw, key, err := admin.GenerateAPIKey(ctx, actor.TenantID, actor.UserID, input.Body.Name, input.Body.ExpiresAt)
		if err != nil {
			return nil, problem(ctx, err)
		}

		out := &CreateAPIKeyOutput{}
		out.Body.Key = raw
		out.Body.APIKey = newAPIKeyView(key)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the calling user's API keys",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, _ *struct{}) (*ListAPIKeysOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actor, _ := middleware.ActorFromContext(ctx)

		keys, err := admin.ListAPIKeys(ctx, actor.TenantID, actor.UserID)
		if err != nil {
			return nil, problem(ctx, err)
		}

		return &ListAPIKeysOutput{Body: mapViews(keys, newAPIKeyView)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteAPIKeyInput) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		tenantID, _ := middleware.TenantIDFromContext(ctx)

		if err := admin.RevokeAPIKey(ctx, tenantID, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, reject(ctx, domain.CodeNotFound, "api key not found")
			}
			return nil, problem(ctx, err)
		}

		return nil, nil
	})
}

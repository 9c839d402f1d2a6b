package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/server/middleware"
)

type CreateTenantInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" maxLength:"255" doc:"Tenant name"`
		Slug string `json:"slug" minLength:"1" maxLength:"63" pattern:"^[a-z0-9]+(?:-[a-z0-9]+)*$" doc:"URL-safe slug (lowercase alphanumeric with hyphens)"`
	}
}

type CreateTenantOutput struct {
	Body TenantView
}

type ListTenantsInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListTenantsOutput struct {
	Body []TenantView
}

// requireAdmin rejects callers whose session role is not admin.
func requireAdmin(ctx context.Context) error {
	role, ok := middleware.RoleFromContext(ctx)
	if !ok || role != domain.RoleAdmin {
		return reject(ctx, domain.CodeForbidden, "admin role required")
	}
	return nil
}

func RegisterTenantRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create a new tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		t := &domain.Tenant{
			ID:        uuid.New(),
			Name:      input.Body.Name,
			Slug:      input.Body.Slug,
			Settings:  map[string]any{},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := store.Tenants().Create(ctx, t); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return nil, huma.Error409Conflict("tenant slug already taken")
			}
			return nil, huma.Error500InternalServerError("failed to create tenant", err)
		}

		return &CreateTenantOutput{Body: newTenantView(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List all tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}

		tenants, err := store.Tenants().ListPaginated(ctx, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tenants", err)
		}

		return &ListTenantsOutput{Body: mapViews(tenants, newTenantView)}, nil
	})
}

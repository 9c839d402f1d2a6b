package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/domain"
)

// SessionOutput carries the token pair issued on register and login.
type SessionOutput struct {
	Body struct {
		User         UserView `json:"user"`
		AccessToken  string   `json:"access_token"`  //nolint:gosec // G117: auth response DTO
		RefreshToken string   `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
	}
}

func newSessionOutput(pair *auth.TokenPair) *SessionOutput {
	out := &SessionOutput{}
	out.Body.User = newUserView(pair.User)
	out.Body.AccessToken = pair.AccessToken
	out.Body.RefreshToken = pair.RefreshToken
	return out
}

type RegisterInput struct {
	Body struct {
		TenantSlug string `json:"tenant_slug" minLength:"1" maxLength:"63" doc:"Tenant slug"`
		Email      string `json:"email" minLength:"3" maxLength:"255" doc:"User email"`
		Password   string `json:"password" minLength:"8" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Name       string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body struct {
		AccessToken string `json:"access_token"` //nolint:gosec // G117: auth response DTO
	}
}

// lookupTenant resolves the slug named in an unauthenticated request. A
// missing tenant is a 404 with a correlation id like any other rejection.
func lookupTenant(ctx context.Context, store DataStore, slug string) (*domain.Tenant, error) {
	tenant, err := store.Tenants().GetBySlug(ctx, slug)
	if err != nil {
		return nil, problem(ctx, err)
	}
	return tenant, nil
}

func RegisterAuthRoutes(api huma.API, store DataStore, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Register a new user",
		Description: "The first user registered in a tenant becomes its admin.",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
		tenant, err := lookupTenant(ctx, store, input.Body.TenantSlug)
		if err != nil {
			return nil, err
		}

		if _, err := authSvc.Register(ctx, tenant.ID, input.Body.Email, input.Body.Password, input.Body.Name); err != nil {
			if errors.Is(err, auth.ErrUserAlreadyExists) {
				return nil, huma.Error409Conflict("user already exists")
			}
			return nil, problem(ctx, err)
		}

		pair, err := authSvc.Login(ctx, tenant.ID, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, problem(ctx, err)
		}
		return newSessionOutput(pair), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with email and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
		tenant, err := lookupTenant(ctx, store, input.Body.TenantSlug)
		if err != nil {
			return nil, err
		}

		pair, err := authSvc.Login(ctx, tenant.ID, input.Body.Email, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid email or password")
			}
			return nil, problem(ctx, err)
		}
		return newSessionOutput(pair), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		accessToken, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}

		out := &RefreshOutput{}
		out.Body.AccessToken = accessToken
		return out, nil
	})
}

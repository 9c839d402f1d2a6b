package v1_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/evidra/internal/api/v1"
	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/server/middleware"
)

// newAPI returns a test API that renders errors the way the server does.
func newAPI(t *testing.T) humatest.TestAPI {
	t.Helper()

	v1.UseProblemErrors()
	_, api := humatest.New(t)
	return api
}

// ---------------------------------------------------------------------------
// Context helpers inject the authenticated actor for DoCtx
// ---------------------------------------------------------------------------

func actorCtx(tenantID uuid.UUID, role string) context.Context {
	return middleware.WithActor(context.Background(), domain.Actor{
		TenantID:   tenantID,
		UserID:     uuid.New(),
		Email:      role + "@example.com",
		Role:       role,
		AuthMethod: domain.AuthMethodSession,
	})
}

func adminCtx(tenantID uuid.UUID) context.Context  { return actorCtx(tenantID, domain.RoleAdmin) }
func memberCtx(tenantID uuid.UUID) context.Context { return actorCtx(tenantID, domain.RoleMember) }
func viewerCtx(tenantID uuid.UUID) context.Context { return actorCtx(tenantID, domain.RoleViewer) }

// problemBody is the decoded error response.
type problemBody struct {
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail"`
	ErrorCode     string `json:"error_code"`
	Field         string `json:"field"`
	CorrelationID string `json:"correlation_id"`
}

func decodeProblem(t *testing.T, resp *httptest.ResponseRecorder) problemBody {
	t.Helper()

	var body problemBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func decodeJSON[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	tenants domain.TenantRepository
}

func (m *mockDataStore) Tenants() domain.TenantRepository { return m.tenants }

// ---------------------------------------------------------------------------
// Mock TenantRepository
// ---------------------------------------------------------------------------

type mockTenantRepo struct {
	createFunc        func(ctx context.Context, t *domain.Tenant) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	getBySlugFunc     func(ctx context.Context, slug string) (*domain.Tenant, error)
	updateFunc        func(ctx context.Context, t *domain.Tenant) error
	listPaginatedFunc func(ctx context.Context, limit, offset int) ([]*domain.Tenant, error)
}

func (m *mockTenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	return m.createFunc(ctx, t)
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return m.getBySlugFunc(ctx, slug)
}

func (m *mockTenantRepo) Update(ctx context.Context, t *domain.Tenant) error {
	return m.updateFunc(ctx, t)
}

func (m *mockTenantRepo) ListPaginated(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	return m.listPaginatedFunc(ctx, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, tenantID uuid.UUID, email, password, name string) (*domain.User, error)
	loginFunc        func(ctx context.Context, tenantID uuid.UUID, email, password string) (*auth.TokenPair, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
}

func (m *mockAuthService) Register(ctx context.Context, tenantID uuid.UUID, email, password, name string) (*domain.User, error) {
	return m.registerFunc(ctx, tenantID, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, tenantID uuid.UUID, email, password string) (*auth.TokenPair, error) {
	return m.loginFunc(ctx, tenantID, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

// ---------------------------------------------------------------------------
// Mock AdminService
// ---------------------------------------------------------------------------

type mockAdminService struct {
	setRoleFunc        func(ctx context.Context, tenantID, userID uuid.UUID, role string) (*domain.User, error)
	generateAPIKeyFunc func(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (string, *domain.APIKey, error)
	listAPIKeysFunc    func(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error)
	revokeAPIKeyFunc   func(ctx context.Context, tenantID, id uuid.UUID) error
}

func (m *mockAdminService) SetRole(ctx context.Context, tenantID, userID uuid.UUID, role string) (*domain.User, error) {
	return m.setRoleFunc(ctx, tenantID, userID, role)
}

func (m *mockAdminService) GenerateAPIKey(ctx context.Context, tenantID, userID uuid.UUID, name string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	return m.generateAPIKeyFunc(ctx, tenantID, userID, name, expiresAt)
}

func (m *mockAdminService) ListAPIKeys(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error) {
	return m.listAPIKeysFunc(ctx, tenantID, userID)
}

func (m *mockAdminService) RevokeAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	return m.revokeAPIKeyFunc(ctx, tenantID, id)
}

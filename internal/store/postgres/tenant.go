package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/evidra/internal/domain"
)

const tenantColumns = `id, name, slug, settings, created_at, updated_at`

type TenantRepo struct {
	pool *pgxpool.Pool
}

func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}
	return &t, nil
}

func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	settings := t.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Slug, settings, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tenantRepo.Create: %w", mapWriteErr(err))
	}
	return nil
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return r.getOne(ctx, "tenantRepo.GetByID", `id = $1`, id)
}

// GetBySlug resolves the tenant a login or registration names.
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return r.getOne(ctx, "tenantRepo.GetBySlug", `slug = $1`, slug)
}

func (r *TenantRepo) getOne(ctx context.Context, caller, where string, arg any) (*domain.Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", caller, err)
	}
	return t, nil
}

func (r *TenantRepo) Update(ctx context.Context, t *domain.Tenant) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET name = $1, slug = $2, settings = $3, updated_at = now()
		 WHERE id = $4`,
		t.Name, t.Slug, t.Settings, t.ID,
	)
	if err != nil {
		return fmt.Errorf("tenantRepo.Update: %w", mapWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenantRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

// ListPaginated returns tenants oldest first.
func (r *TenantRepo) ListPaginated(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.ListPaginated: %w", err)
	}

	tenants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Tenant, error) {
		return scanTenant(row)
	})
	if err != nil {
		return nil, fmt.Errorf("tenantRepo.ListPaginated: %w", err)
	}
	return tenants, nil
}

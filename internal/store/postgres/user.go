package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/evidra/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, tenant_id, email, password_hash, name, role, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.TenantID, u.Email, nilIfEmpty(u.PasswordHash),
		u.Name, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", mapWriteErr(err))
	}

	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u            domain.User
		passwordHash *string
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &passwordHash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = derefStr(passwordHash)
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, "userRepo.GetByID", `id = $2`, tenantID, id)
}

// GetByEmail is the login lookup; emails are unique per tenant only.
func (r *UserRepo) GetByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*domain.User, error) {
	return r.getOne(ctx, "userRepo.GetByEmail", `email = $2`, tenantID, email)
}

func (r *UserRepo) getOne(ctx context.Context, caller, where string, tenantID uuid.UUID, arg any) (*domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND `+where,
		tenantID, arg,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", caller, err)
	}
	return u, nil
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $1, password_hash = $2, name = $3, role = $4, updated_at = now()
		 WHERE tenant_id = $5 AND id = $6`,
		u.Email, nilIfEmpty(u.PasswordHash), u.Name, u.Role,
		u.TenantID, u.ID,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Update: %w", mapWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("userRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

// List returns at most 500 users of a tenant, oldest first.
func (r *UserRepo) List(ctx context.Context, tenantID uuid.UUID) ([]*domain.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at, id LIMIT 500`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	return users, nil
}

// --- API Keys ---

const apiKeyColumns = `id, tenant_id, user_id, name, key_hash, prefix, scopes, last_used_at, expires_at, created_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var (
		key    domain.APIKey
		scopes []byte
	)
	if err := row.Scan(&key.ID, &key.TenantID, &key.UserID, &key.Name, &key.KeyHash, &key.Prefix,
		&scopes, &key.LastUsedAt, &key.ExpiresAt, &key.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &key.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshal scopes: %w", err)
	}
	return &key, nil
}

func (r *UserRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("userRepo.CreateAPIKey: marshal scopes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		key.ID, key.TenantID, key.UserID, key.Name, key.KeyHash, key.Prefix,
		scopes, key.LastUsedAt, key.ExpiresAt, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.CreateAPIKey: %w", mapWriteErr(err))
	}

	return nil
}

// GetAPIKeyByPrefix looks a key up by its lookup prefix. A nil tenantID
// searches every tenant; prefixes are globally unique.
func (r *UserRepo) GetAPIKeyByPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) (*domain.APIKey, error) {
	key, err := scanAPIKey(r.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE prefix = $1 AND ($2 OR tenant_id = $3)`,
		prefix, tenantID == uuid.Nil, tenantID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("userRepo.GetAPIKeyByPrefix: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetAPIKeyByPrefix: %w", err)
	}
	return key, nil
}

func (r *UserRepo) ListAPIKeys(ctx context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at`,
		tenantID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListAPIKeys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.APIKey, error) {
		return scanAPIKey(row)
	})
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListAPIKeys: %w", err)
	}
	return keys, nil
}

func (r *UserRepo) DeleteAPIKey(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM api_keys WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.DeleteAPIKey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("userRepo.DeleteAPIKey: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *UserRepo) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateAPIKeyLastUsed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("userRepo.UpdateAPIKeyLastUsed: %w", domain.ErrNotFound)
	}

	return nil
}

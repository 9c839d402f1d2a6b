package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/evidra/internal/domain"
)

type WorkItemRepo struct {
	pool *pgxpool.Pool
}

func NewWorkItemRepo(pool *pgxpool.Pool) *WorkItemRepo {
	return &WorkItemRepo{pool: pool}
}

const workItemColumns = `id, tenant_id, type, status, priority, title, description, evidence_ids,
	resolution, created_by, resolved_by, created_at, resolved_at`

func insertWorkItem(ctx context.Context, q querier, w *domain.WorkItem) error {
	evidenceIDs := w.EvidenceIDs
	if evidenceIDs == nil {
		evidenceIDs = []uuid.UUID{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO work_items (`+workItemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.TenantID, w.Type, w.Status, w.Priority, w.Title, w.Description, evidenceIDs,
		w.Resolution, w.CreatedBy, w.ResolvedBy, w.CreatedAt, w.ResolvedAt,
	)
	return mapWriteErr(err)
}

func (r *WorkItemRepo) Create(ctx context.Context, w *domain.WorkItem, ev *domain.AuditEvent) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertWorkItem(ctx, tx, w); err != nil {
			return err
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("workItemRepo.Create: %w", err)
	}

	return nil
}

func scanWorkItem(row pgx.Row, w *domain.WorkItem) error {
	return row.Scan(
		&w.ID, &w.TenantID, &w.Type, &w.Status, &w.Priority, &w.Title, &w.Description, &w.EvidenceIDs,
		&w.Resolution, &w.CreatedBy, &w.ResolvedBy, &w.CreatedAt, &w.ResolvedAt,
	)
}

func (r *WorkItemRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.WorkItem, error) {
	var w domain.WorkItem

	err := scanWorkItem(r.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	), &w)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workItemRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("workItemRepo.GetByID: %w", err)
	}

	return &w, nil
}

func (r *WorkItemRepo) List(ctx context.Context, tenantID uuid.UUID, status domain.WorkItemStatus, limit, offset int) ([]*domain.WorkItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workItemColumns+`
		 FROM work_items
		 WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		tenantID, string(status), limitOrAll(limit), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("workItemRepo.List: %w", err)
	}
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		var w domain.WorkItem
		if err = scanWorkItem(rows, &w); err != nil {
			return nil, fmt.Errorf("workItemRepo.List: scan: %w", err)
		}
		items = append(items, &w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("workItemRepo.List: rows: %w", err)
	}

	return items, nil
}

// Resolve moves an OPEN item to RESOLVED with a conditional update.
func (r *WorkItemRepo) Resolve(ctx context.Context, tenantID, id uuid.UUID, resolution string, resolvedBy uuid.UUID, at time.Time, ev *domain.AuditEvent) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE work_items
			 SET status = $1, resolution = $2, resolved_by = $3, resolved_at = $4
			 WHERE tenant_id = $5 AND id = $6 AND status = $7`,
			domain.WorkItemResolved, resolution, resolvedBy, at,
			tenantID, id, domain.WorkItemOpen,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM work_items WHERE tenant_id = $1 AND id = $2)`,
				tenantID, id,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}
		return insertAuditEvents(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("workItemRepo.Resolve: %w", err)
	}

	return nil
}

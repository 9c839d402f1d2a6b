package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/evidra/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditColumns = `id, tenant_id, actor_type, actor_id, actor_email, action, entity_type, entity_id,
	previous_state, new_state, regulatory_citation, correlation_id, details, created_at`

// insertAuditEvents writes events through q so callers can include them in
// the transaction that performs the state change. Nil events are skipped.
func insertAuditEvents(ctx context.Context, q querier, events ...*domain.AuditEvent) error {
	for _, e := range events {
		if e == nil {
			continue
		}
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		_, err = q.Exec(ctx,
			`INSERT INTO audit_events (`+auditColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			e.ID, e.TenantID, e.ActorType, e.ActorID, e.ActorEmail,
			e.Action, e.EntityType, e.EntityID,
			e.PreviousState, e.NewState, e.RegulatoryCitation, e.CorrelationID,
			details, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	return nil
}

func (r *AuditRepo) Record(ctx context.Context, e *domain.AuditEvent) error {
	if err := insertAuditEvents(ctx, r.pool, e); err != nil {
		return fmt.Errorf("auditRepo.Record: %w", err)
	}
	return nil
}

// ListByTenant returns events newest first.
func (r *AuditRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter domain.AuditFilter) ([]*domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auditColumns+`
		 FROM audit_events
		 WHERE tenant_id = $1
		   AND ($2 = '' OR entity_type = $2)
		   AND ($3::uuid IS NULL OR entity_id = $3)
		 ORDER BY seq DESC
		 LIMIT $4 OFFSET $5`,
		tenantID, filter.EntityType, filter.EntityID, limitOrAll(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListByTenant: %w", err)
	}
	defer rows.Close()

	return scanAuditEvents(rows, "auditRepo.ListByTenant")
}

func scanAuditEvents(rows pgx.Rows, caller string) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var details []byte

		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.ActorType, &e.ActorID, &e.ActorEmail,
			&e.Action, &e.EntityType, &e.EntityID,
			&e.PreviousState, &e.NewState, &e.RegulatoryCitation, &e.CorrelationID,
			&details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("%s: unmarshal details: %w", caller, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}

// limitOrAll maps a zero limit to NULL, which Postgres treats as LIMIT ALL.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

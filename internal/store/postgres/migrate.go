package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// schemaLockID serializes migrations across replicas starting at once.
const schemaLockID = 0x65766472 // "evdr"

// Migrate applies the embedded schema. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockID)); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		// No arguments, so pgx sends the file over the simple protocol and
		// multiple statements are allowed.
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}

	log.Info().Msg("database schema up to date")
	return nil
}

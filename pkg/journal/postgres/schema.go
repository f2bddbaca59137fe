// Package postgres provides a PostgreSQL-backed [journal.Store].
//
// All operations share one [pgxpool.Pool]. [Migrate] creates the table and
// indexes on first use.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Append(ctx, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlJournalEntries = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    turn_id     TEXT         NOT NULL DEFAULT '',
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    mode        TEXT         NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_session_id
    ON journal_entries (session_id, id);
`

// Migrate creates the journal schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlJournalEntries); err != nil {
		return fmt.Errorf("migrate journal_entries: %w", err)
	}
	return nil
}

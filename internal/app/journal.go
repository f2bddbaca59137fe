package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/health"
	"github.com/MrWong99/vocalis/pkg/journal"
	"github.com/MrWong99/vocalis/pkg/journal/postgres"
)

// Journal is an opened conversation journal.
type Journal struct {
	// Store is nil when journaling is disabled. Otherwise it is wrapped in
	// a [journal.Guard] so storage failures never end a conversation.
	Store journal.Store

	// Checks report the journal's readiness. They are optional: a failing
	// journal degrades the front end but does not stop it.
	Checks []health.Checker

	close func()
}

// Close releases the underlying connection pool, if any. Safe on a nil or
// disabled journal.
func (j *Journal) Close() {
	if j != nil && j.close != nil {
		j.close()
	}
}

// OpenJournal opens the store named by cfg.Driver.
func OpenJournal(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	switch cfg.Driver {
	case config.JournalNone:
		return &Journal{}, nil

	case config.JournalMemory, "":
		g := journal.NewGuard(journal.NewMemStore(), log)
		return &Journal{
			Store:  g,
			Checks: []health.Checker{{Name: "journal", Check: g.Check, Optional: true}},
		}, nil

	case config.JournalPostgres:
		store, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		g := journal.NewGuard(store, log)
		return &Journal{
			Store: g,
			Checks: []health.Checker{
				{Name: "journal", Check: g.Check, Optional: true},
				{Name: "postgres", Check: store.Ping, Optional: true},
			},
			close: store.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
}

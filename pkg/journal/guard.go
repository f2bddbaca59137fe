package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
)

var _ Store = (*Guard)(nil)

// Guard wraps a [Store] and makes all operations non-fatal. If the
// underlying store fails, operations return defaults and log warnings
// instead of propagating errors.
//
// A database restart must not end a conversation; IsDegraded reports whether
// the most recent operation failed so health checks can surface it.
type Guard struct {
	store    Store
	log      *slog.Logger
	degraded atomic.Bool
}

// NewGuard wraps store. A nil logger uses slog.Default.
func NewGuard(store Store, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{store: store, log: log.With("component", "journal")}
}

// Append writes entries. On failure the error is logged and swallowed and
// the guard is marked degraded.
func (g *Guard) Append(ctx context.Context, entries ...Entry) error {
	if err := g.store.Append(ctx, entries...); err != nil {
		g.degraded.Store(true)
		g.log.Warn("append failed, swallowing error", "entries", len(entries), "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Recent reads entries. On failure an empty slice is returned.
func (g *Guard) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	entries, err := g.store.Recent(ctx, sessionID, limit)
	if err != nil {
		g.degraded.Store(true)
		g.log.Warn("recent failed, returning empty", "session_id", sessionID, "err", err)
		return []Entry{}, nil
	}
	g.degraded.Store(false)
	return entries, nil
}

// Clear removes a session. On failure the error is logged and swallowed.
func (g *Guard) Clear(ctx context.Context, sessionID string) error {
	if err := g.store.Clear(ctx, sessionID); err != nil {
		g.degraded.Store(true)
		g.log.Warn("clear failed, swallowing error", "session_id", sessionID, "err", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the most recent operation on the underlying
// store failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

// Check reports the degraded state as an error for readiness probes.
func (g *Guard) Check(context.Context) error {
	if g.IsDegraded() {
		return errDegraded
	}
	return nil
}

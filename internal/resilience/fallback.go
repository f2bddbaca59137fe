package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breakers a [FallbackGroup] creates for its
// entries. CircuitBreaker.Name is replaced by each entry's name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries backends of one kind in registration order, each
// behind its own [CircuitBreaker]. An error the breaker does not charge
// (a cancelled turn, an answer-like error such as an empty transcript) is
// returned at once without asking the next entry.
//
// Register every entry before sharing the group between goroutines.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
	served  atomic.Int32 // index of the last entry that answered
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Len returns the number of entries, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T { return fg.members[0].value }

// Serving returns the name of the entry that answered last, or the
// primary's name before any call succeeded.
func (fg *FallbackGroup[T]) Serving() string { return fg.members[fg.served.Load()].name }

// Check fails when every entry's breaker is open. It backs readiness
// probes.
func (fg *FallbackGroup[T]) Check(context.Context) error {
	names := make([]string, 0, len(fg.members))
	for _, m := range fg.members {
		if m.breaker.State() != StateOpen {
			return nil
		}
		names = append(names, m.name)
	}
	return fmt.Errorf("resilience: every circuit is open: %s", strings.Join(names, ", "))
}

// Execute runs fn against the entries until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := run(fg, func(_ int, v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// ExecuteWithResult runs fn against the entries until one succeeds and
// returns its result. A failure of every entry returns [ErrAllFailed]
// joined with the last entry's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	return run(fg, func(_ int, v T) (R, error) { return fn(v) })
}

// run passes each entry's position to fn; 0 is the primary.
func run[T, R any](fg *FallbackGroup[T], fn func(int, T) (R, error)) (R, error) {
	var (
		zero R
		last error
	)
	for i, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() (err error) {
			out, err = fn(i, m.value)
			return err
		})
		if err == nil {
			fg.served.Store(int32(i))
			return out, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: circuit open, skipping", "provider", m.name)
		} else if !m.breaker.Counts(err) {
			return zero, err
		} else if i < len(fg.members)-1 {
			slog.Warn("resilience: provider failed, failing over", "provider", m.name, "next", fg.members[i+1].name, "err", err)
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

// group is embedded by the typed wrappers to share registration and
// readiness.
type group[T any] struct {
	fg *FallbackGroup[T]
}

// AddFallback registers another backend.
func (g group[T]) AddFallback(name string, v T) { g.fg.AddFallback(name, v) }

// Check reports whether any backend is admitting calls.
func (g group[T]) Check(ctx context.Context) error { return g.fg.Check(ctx) }

// Serving names the backend that answered last.
func (g group[T]) Serving() string { return g.fg.Serving() }

// Package mock provides a scriptable [journal.Store] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocalis/pkg/journal"
)

// Store is a mock implementation of [journal.Store]. Appended entries are
// kept so Recent can return them; set the Err fields to inject failures.
type Store struct {
	mu sync.Mutex

	// AppendErr, RecentErr and ClearErr are returned by the matching method.
	AppendErr error
	RecentErr error
	ClearErr  error

	// Entries holds everything successfully appended, in order.
	Entries []journal.Entry

	calls map[string]int
}

func (s *Store) record(method string) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[method]++
}

// Append implements [journal.Store].
func (s *Store) Append(_ context.Context, entries ...journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Append")
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.Entries = append(s.Entries, entries...)
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(_ context.Context, sessionID string, limit int) ([]journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Recent")
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	var out []journal.Entry
	for _, e := range s.Entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Clear implements [journal.Store].
func (s *Store) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Clear")
	if s.ClearErr != nil {
		return s.ClearErr
	}
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if e.SessionID != sessionID {
			kept = append(kept, e)
		}
	}
	s.Entries = kept
	return nil
}

// CallCount returns how often method was called. Thread-safe.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Snapshot returns a copy of Entries. Thread-safe.
func (s *Store) Snapshot() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journal.Entry, len(s.Entries))
	copy(out, s.Entries)
	return out
}

var _ journal.Store = (*Store)(nil)

package journal

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store]. Entries are lost when the process exits.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	now      func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Entry), now: time.Now}
}

// Append implements [Store]. A zero Timestamp is set to the current time.
func (m *MemStore) Append(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = m.now()
		}
		m.sessions[e.SessionID] = append(m.sessions[e.SessionID], e)
	}
	return nil
}

// Recent implements [Store].
func (m *MemStore) Recent(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sessions[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Entry, len(all))
	copy(out, all)
	return out, nil
}

// Clear implements [Store].
func (m *MemStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

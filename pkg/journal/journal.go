// Package journal records the spoken conversation: every user prompt and
// every reply, keyed by the responder session they belong to.
//
// The chat responder uses a Store to rebuild its history when a session is
// resumed after a restart, and the session runner appends each completed turn.
// Backends: [MemStore] for tests and single-run use, postgres.Store for a
// durable log. [Guard] wraps any Store so a failing backend never interrupts
// a conversation.
package journal

import (
	"context"
	"time"
)

// Roles used in [Entry.Role].
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one line of the conversation.
type Entry struct {
	// SessionID groups entries of one responder conversation.
	SessionID string

	// TurnID ties a prompt to its reply.
	TurnID string

	// Role is RoleUser or RoleAssistant.
	Role string

	// Text is what was said.
	Text string

	// Mode is the session mode the turn happened in ("wake", "chat", "ask").
	Mode string

	// Timestamp is when the entry was recorded.
	Timestamp time.Time
}

// Store persists journal entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds entries in order.
	Append(ctx context.Context, entries ...Entry) error

	// Recent returns up to limit of the newest entries for sessionID, oldest
	// first. limit <= 0 returns all entries.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Clear removes every entry of sessionID.
	Clear(ctx context.Context, sessionID string) error
}

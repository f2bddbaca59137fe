// Package mock provides a scripted [responder.Responder] for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/provider/responder"
)

// RespondCall records a single invocation of Respond or RespondStream.
type RespondCall struct {
	Text    string
	Context responder.SessionContext
}

// Responder is a mock implementation of [responder.Responder].
//
// Replies are returned in order; once exhausted Fallback is used. The session
// ID in each reply is SessionID, or "mock-session" when empty.
type Responder struct {
	mu sync.Mutex

	// Replies are returned in call order.
	Replies []string

	// Fallback is returned once Replies is exhausted.
	Fallback string

	// Err, when non-nil, is returned by every call.
	Err error

	// Delay is waited before answering; cancellation during the wait
	// returns responder.ErrCancelled.
	Delay time.Duration

	// SessionID is reported in Reply.Context.
	SessionID string

	// Partial is streamed by RespondStream before it returns Err.
	Partial string

	// Calls records every Respond invocation.
	Calls []RespondCall

	next int
}

// Respond implements [responder.Responder].
func (m *Responder) Respond(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, error) {
	reply, _, err := m.answer(ctx, text, sc)
	return reply, err
}

// RespondStream implements [responder.Streamer]. The reply is emitted word
// by word; a failing call emits Partial first.
func (m *Responder) RespondStream(ctx context.Context, text string, sc responder.SessionContext, onDelta func(string)) (responder.Reply, error) {
	reply, partial, err := m.answer(ctx, text, sc)
	emit := reply.Text
	if err != nil {
		emit = partial
	}
	if onDelta != nil {
		for w := range strings.FieldsSeq(emit) {
			onDelta(w + " ")
		}
	}
	return reply, err
}

func (m *Responder) answer(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RespondCall{Text: text, Context: sc})
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return responder.Reply{Context: sc}, "", fmt.Errorf("%w: %w", responder.ErrCancelled, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return responder.Reply{Context: sc}, m.Partial, m.Err
	}
	reply := m.Fallback
	if m.next < len(m.Replies) {
		reply = m.Replies[m.next]
		m.next++
	}
	if reply == "" {
		return responder.Reply{Context: sc}, "", responder.ErrEmptyReply
	}
	id := m.SessionID
	if id == "" {
		id = "mock-session"
	}
	return responder.Reply{Text: reply, Context: responder.SessionContext{ID: id}}, "", nil
}

// CallsSnapshot returns a copy of Calls. Thread-safe.
func (m *Responder) CallsSnapshot() []RespondCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RespondCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

var _ responder.Streamer = (*Responder)(nil)

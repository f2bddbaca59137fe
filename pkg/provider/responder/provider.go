// Package responder defines the text-in, text-out backend that answers a
// spoken prompt.
//
// A responder owns conversation memory. The caller passes an opaque
// [SessionContext] with every prompt and stores the updated context returned
// in [Reply]; it never inspects the ID. Backends: claudecli (the claude CLI
// as a subprocess with --resume) and chat (an llm.Provider plus a journal).
package responder

import (
	"context"
	"errors"
)

// ErrCancelled is returned when ctx was cancelled while the backend was
// working. The partial reply, if any, is discarded.
var ErrCancelled = errors.New("responder: cancelled")

// ErrEmptyReply is returned when the backend answered with no text.
var ErrEmptyReply = errors.New("responder: empty reply")

// SessionContext identifies the conversation a prompt continues.
type SessionContext struct {
	// ID is assigned by the backend. Empty starts a new conversation.
	ID string

	// Reset discards the conversation named by ID (and any persisted one)
	// before answering.
	Reset bool
}

// Reply is the backend's answer.
type Reply struct {
	// Text is the reply to be spoken.
	Text string

	// Context must be passed with the next prompt to continue the
	// conversation. Reset is always false.
	Context SessionContext
}

// Responder answers prompts.
//
// Respond blocks until the reply is complete or ctx is cancelled; on
// cancellation it returns an error wrapping [ErrCancelled] and releases any
// backend resources (subprocesses, streams) before returning.
type Responder interface {
	Respond(ctx context.Context, text string, sc SessionContext) (Reply, error)
}

// Streamer is implemented by responders that can hand out the reply while it
// is being generated.
//
// RespondStream calls onDelta with each piece of text in order, from the
// calling goroutine, before returning. The returned Reply carries the whole
// text. After an error onDelta may already have seen part of the reply.
type Streamer interface {
	Responder
	RespondStream(ctx context.Context, text string, sc SessionContext, onDelta func(string)) (Reply, error)
}

package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/vocalis/pkg/provider/responder"
)

// ResponderFallback implements [responder.Responder] with failover across
// several backends, e.g. the claude CLI backed by a plain chat model.
//
// Conversation memory belongs to the backend that created it. When a prompt
// fails over, the session context is dropped for the fallback so it starts a
// fresh conversation instead of resuming an ID it never issued.
//
// A streamed reply fails over only while nothing has been emitted; once the
// listener has heard part of an answer, a second answer would repeat it.
type ResponderFallback struct {
	group[responder.Responder]
}

var _ responder.Streamer = (*ResponderFallback)(nil)

// errReplyStarted marks a backend failure after part of the reply was
// already emitted. It stops failover without tripping the breaker.
var errReplyStarted = errors.New("resilience: reply failed after it started")

// NewResponderFallback creates a [ResponderFallback] with primary as the
// preferred backend.
func NewResponderFallback(primary responder.Responder, primaryName string, cfg FallbackConfig) *ResponderFallback {
	cfg.CircuitBreaker.IsFailure = notAnswer(cfg.CircuitBreaker.IsFailure, responder.ErrCancelled, responder.ErrEmptyReply, errReplyStarted)
	return &ResponderFallback{group[responder.Responder]{NewFallbackGroup(primary, primaryName, cfg)}}
}

// Respond answers text on the first healthy backend.
func (f *ResponderFallback) Respond(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, error) {
	reply, err := run(f.fg, func(i int, r responder.Responder) (responder.Reply, error) {
		if i > 0 {
			return r.Respond(ctx, text, responder.SessionContext{})
		}
		return r.Respond(ctx, text, sc)
	})
	if err != nil {
		reply.Context = sc
	}
	return reply, err
}

// RespondStream streams the reply of the first healthy backend. Backends that
// cannot stream emit their whole reply as a single delta.
func (f *ResponderFallback) RespondStream(ctx context.Context, text string, sc responder.SessionContext, onDelta func(string)) (responder.Reply, error) {
	reply, err := run(f.fg, func(i int, r responder.Responder) (responder.Reply, error) {
		use := sc
		if i > 0 {
			use = responder.SessionContext{}
		}
		s, ok := r.(responder.Streamer)
		if !ok {
			reply, err := r.Respond(ctx, text, use)
			if err == nil && onDelta != nil {
				onDelta(reply.Text)
			}
			return reply, err
		}

		started := false
		reply, err := s.RespondStream(ctx, text, use, func(d string) {
			started = true
			if onDelta != nil {
				onDelta(d)
			}
		})
		if err != nil && started {
			return reply, fmt.Errorf("%w: %w", errReplyStarted, err)
		}
		return reply, err
	})
	if err != nil {
		reply.Context = sc
	}
	return reply, err
}

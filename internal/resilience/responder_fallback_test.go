package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/pkg/provider/responder"
	respmock "github.com/MrWong99/vocalis/pkg/provider/responder/mock"
)

func TestResponderFallback_PrimaryKeepsContext(t *testing.T) {
	primary := &respmock.Responder{Replies: []string{"Sure."}, SessionID: "abc"}
	secondary := &respmock.Responder{Replies: []string{"Other."}}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{})
	fb.AddFallback("chat", secondary)

	sc := responder.SessionContext{ID: "abc"}
	reply, err := fb.Respond(context.Background(), "what time is it", sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "Sure." || reply.Context.ID != "abc" {
		t.Fatalf("reply = %+v, want Sure. in session abc", reply)
	}
	calls := primary.CallsSnapshot()
	if len(calls) != 1 || calls[0].Context != sc {
		t.Fatalf("primary calls = %+v, want one call with %+v", calls, sc)
	}
}

func TestResponderFallback_FailoverStartsFresh(t *testing.T) {
	primary := &respmock.Responder{Err: errors.New("cli missing")}
	secondary := &respmock.Responder{Replies: []string{"Fallback answer."}, SessionID: "chat-1"}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("chat", secondary)

	reply, err := fb.Respond(context.Background(), "hi", responder.SessionContext{ID: "cli-session"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "Fallback answer." || reply.Context.ID != "chat-1" {
		t.Fatalf("reply = %+v", reply)
	}
	calls := secondary.CallsSnapshot()
	if len(calls) != 1 || calls[0].Context.ID != "" {
		t.Fatalf("secondary calls = %+v, want one call without a session ID", calls)
	}
}

func TestResponderFallback_OpenPrimaryStillStartsFresh(t *testing.T) {
	primary := &respmock.Responder{Err: errors.New("cli missing")}
	secondary := &respmock.Responder{Fallback: "ok"}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("chat", secondary)

	for range 2 {
		if _, err := fb.Respond(context.Background(), "hi", responder.SessionContext{ID: "cli-session"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := len(primary.CallsSnapshot()); n != 1 {
		t.Fatalf("primary called %d times, want 1 (breaker open)", n)
	}
	for _, c := range secondary.CallsSnapshot() {
		if c.Context.ID != "" {
			t.Fatalf("secondary got session %q, want none", c.Context.ID)
		}
	}
}

func TestResponderFallback_CancelNotRetried(t *testing.T) {
	primary := &respmock.Responder{Fallback: "slow", Delay: time.Minute}
	secondary := &respmock.Responder{Fallback: "fast"}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{})
	fb.AddFallback("chat", secondary)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sc := responder.SessionContext{ID: "keep"}
	reply, err := fb.Respond(ctx, "hi", sc)
	if !errors.Is(err, responder.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if reply.Context != sc {
		t.Fatalf("context = %+v, want %+v preserved", reply.Context, sc)
	}
	if n := len(secondary.CallsSnapshot()); n != 0 {
		t.Fatalf("secondary called %d times, want 0", n)
	}
}

func TestResponderFallback_AllFail(t *testing.T) {
	primary := &respmock.Responder{Err: errors.New("down")}
	secondary := &respmock.Responder{Err: errors.New("also down")}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{})
	fb.AddFallback("chat", secondary)

	sc := responder.SessionContext{ID: "keep"}
	reply, err := fb.Respond(context.Background(), "hi", sc)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if reply.Context != sc {
		t.Fatalf("context = %+v, want %+v preserved", reply.Context, sc)
	}
}

// plainResponder hides the mock's streaming method.
type plainResponder struct{ r *respmock.Responder }

func (p plainResponder) Respond(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, error) {
	return p.r.Respond(ctx, text, sc)
}

func TestResponderFallback_StreamFailsOverBeforeFirstDelta(t *testing.T) {
	primary := &respmock.Responder{Err: errors.New("cli missing")}
	secondary := &respmock.Responder{Fallback: "It is noon.", SessionID: "chat-1"}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{})
	fb.AddFallback("chat", plainResponder{secondary})

	var deltas []string
	reply, err := fb.RespondStream(context.Background(), "time", responder.SessionContext{ID: "cli"}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "It is noon." || fb.Serving() != "chat" {
		t.Fatalf("reply = %+v from %q", reply, fb.Serving())
	}
	if len(deltas) != 1 || deltas[0] != "It is noon." {
		t.Fatalf("deltas = %q, want the whole reply once", deltas)
	}
	if calls := secondary.CallsSnapshot(); len(calls) != 1 || calls[0].Context.ID != "" {
		t.Fatalf("secondary calls = %+v, want one fresh call", calls)
	}
}

func TestResponderFallback_StreamStopsAfterFirstDelta(t *testing.T) {
	cause := errors.New("stream reset")
	primary := &respmock.Responder{Err: cause, Partial: "It is"}
	secondary := &respmock.Responder{Fallback: "Other answer."}

	fb := NewResponderFallback(primary, "claudecli", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("chat", secondary)

	var heard string
	sc := responder.SessionContext{ID: "keep"}
	reply, err := fb.RespondStream(context.Background(), "time", sc, func(d string) { heard += d })
	if !errors.Is(err, cause) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the primary's error without failover", err)
	}
	if heard != "It is " {
		t.Fatalf("heard %q", heard)
	}
	if reply.Context != sc {
		t.Fatalf("context = %+v, want %+v preserved", reply.Context, sc)
	}
	if n := len(secondary.CallsSnapshot()); n != 0 {
		t.Fatalf("secondary called %d times after the reply started", n)
	}

	// The interrupted stream did not open the primary's breaker.
	primary.Err, primary.Partial = nil, ""
	primary.Fallback = "Back."
	if _, err := fb.RespondStream(context.Background(), "again", sc, nil); err != nil || fb.Serving() != "claudecli" {
		t.Fatalf("second call err = %v served by %q, want claudecli", err, fb.Serving())
	}
}

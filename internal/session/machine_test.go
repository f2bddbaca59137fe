package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/session"
)

// drive fires events in order on a fresh machine, failing on ignored ones.
func drive(t *testing.T, mode session.Mode, events ...session.Event) *session.Machine {
	t.Helper()
	m := session.NewMachine(mode)
	for _, ev := range events {
		if _, err := m.Fire(ev); err != nil {
			t.Fatalf("setup %s: %v", ev, err)
		}
	}
	return m
}

func TestMachine_Transitions(t *testing.T) {
	t.Parallel()

	listening := map[session.Mode][]session.Event{
		session.ModeWake: {session.EvWake},
		session.ModeChat: {session.EvStart},
		session.ModeAsk:  {session.EvStart},
	}
	with := func(mode session.Mode, evs ...session.Event) []session.Event {
		return append(append([]session.Event{}, listening[mode]...), evs...)
	}

	tests := []struct {
		name       string
		mode       session.Mode
		setup      []session.Event
		ev         session.Event
		wantState  session.State
		wantReason session.Reason
	}{
		{"wake idle wake", session.ModeWake, nil, session.EvWake, session.StateListening, session.ReasonNone},
		{"chat idle start", session.ModeChat, nil, session.EvStart, session.StateListening, session.ReasonNone},
		{"ask idle start", session.ModeAsk, nil, session.EvStart, session.StateListening, session.ReasonNone},

		{"listening utterance", session.ModeChat, with(session.ModeChat), session.EvUtterance, session.StateProcessing, session.ReasonNone},
		{"listening degenerate stays", session.ModeChat, with(session.ModeChat), session.EvDegenerate, session.StateListening, session.ReasonNone},
		{"chat inactivity terminates", session.ModeChat, with(session.ModeChat), session.EvInactivity, session.StateTerminated, session.ReasonInactivity},
		{"ask inactivity terminates", session.ModeAsk, with(session.ModeAsk), session.EvInactivity, session.StateTerminated, session.ReasonInactivity},
		{"wake inactivity returns to idle", session.ModeWake, with(session.ModeWake), session.EvInactivity, session.StateIdle, session.ReasonInactivity},

		{"processing response", session.ModeChat, with(session.ModeChat, session.EvUtterance), session.EvResponse, session.StateSpeaking, session.ReasonNone},
		{"processing goodbye", session.ModeChat, with(session.ModeChat, session.EvUtterance), session.EvGoodbye, session.StateTerminated, session.ReasonGoodbye},
		{"processing cancel", session.ModeChat, with(session.ModeChat, session.EvUtterance), session.EvCancel, session.StateCancelled, session.ReasonCancelled},
		{"chat failure recovers", session.ModeChat, with(session.ModeChat, session.EvUtterance), session.EvFailure, session.StateListening, session.ReasonNone},
		{"wake failure recovers", session.ModeWake, with(session.ModeWake, session.EvUtterance), session.EvFailure, session.StateListening, session.ReasonNone},
		{"ask failure terminates", session.ModeAsk, with(session.ModeAsk, session.EvUtterance), session.EvFailure, session.StateTerminated, session.ReasonFailure},
		{"chat degenerate in processing", session.ModeChat, with(session.ModeChat, session.EvUtterance), session.EvDegenerate, session.StateListening, session.ReasonNone},
		{"ask degenerate in processing", session.ModeAsk, with(session.ModeAsk, session.EvUtterance), session.EvDegenerate, session.StateTerminated, session.ReasonFailure},

		{"ask playback done", session.ModeAsk, with(session.ModeAsk, session.EvUtterance, session.EvResponse), session.EvPlaybackDone, session.StateTerminated, session.ReasonCompleted},
		{"chat playback done", session.ModeChat, with(session.ModeChat, session.EvUtterance, session.EvResponse), session.EvPlaybackDone, session.StateListening, session.ReasonNone},
		{"wake playback done", session.ModeWake, with(session.ModeWake, session.EvUtterance, session.EvResponse), session.EvPlaybackDone, session.StateIdle, session.ReasonNone},
		{"speaking cancel", session.ModeChat, with(session.ModeChat, session.EvUtterance, session.EvResponse), session.EvCancel, session.StateCancelled, session.ReasonCancelled},

		{"idle shutdown", session.ModeWake, nil, session.EvShutdown, session.StateTerminated, session.ReasonShutdown},
		{"idle cancel", session.ModeWake, nil, session.EvCancel, session.StateCancelled, session.ReasonCancelled},
		{"listening shutdown", session.ModeChat, with(session.ModeChat), session.EvShutdown, session.StateTerminated, session.ReasonShutdown},
		{"speaking shutdown", session.ModeAsk, with(session.ModeAsk, session.EvUtterance, session.EvResponse), session.EvShutdown, session.StateTerminated, session.ReasonShutdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := drive(t, tt.mode, tt.setup...)
			tr, err := m.Fire(tt.ev)
			if err != nil {
				t.Fatalf("Fire(%s): %v", tt.ev, err)
			}
			if tr.To != tt.wantState || m.State() != tt.wantState {
				t.Errorf("state = %s (transition to %s), want %s", m.State(), tr.To, tt.wantState)
			}
			if tr.Reason != tt.wantReason || m.Reason() != tt.wantReason {
				t.Errorf("reason = %s, want %s", m.Reason(), tt.wantReason)
			}
			if tr.Event != tt.ev || tr.Mode != tt.mode {
				t.Errorf("transition = %+v", tr)
			}
		})
	}
}

func TestMachine_IgnoredEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		mode  session.Mode
		setup []session.Event
		ev    session.Event
	}{
		{"wake event in chat idle", session.ModeChat, nil, session.EvWake},
		{"start in wake idle", session.ModeWake, nil, session.EvStart},
		{"utterance in idle", session.ModeWake, nil, session.EvUtterance},
		{"inactivity in idle", session.ModeWake, nil, session.EvInactivity},
		{"response in listening", session.ModeChat, []session.Event{session.EvStart}, session.EvResponse},
		{"playback done in processing", session.ModeChat, []session.Event{session.EvStart, session.EvUtterance}, session.EvPlaybackDone},
		{"utterance in speaking", session.ModeChat, []session.Event{session.EvStart, session.EvUtterance, session.EvResponse}, session.EvUtterance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := drive(t, tt.mode, tt.setup...)
			before := m.Snapshot()
			tr, err := m.Fire(tt.ev)
			if !errors.Is(err, session.ErrIgnoredEvent) {
				t.Fatalf("err = %v, want ErrIgnoredEvent", err)
			}
			if tr.From != before.State || tr.To != before.State || m.State() != before.State {
				t.Errorf("state changed: %+v", tr)
			}
		})
	}
}

func TestMachine_TerminalStatesAbsorb(t *testing.T) {
	t.Parallel()
	all := []session.Event{
		session.EvStart, session.EvWake, session.EvUtterance, session.EvDegenerate,
		session.EvResponse, session.EvCancel, session.EvGoodbye, session.EvFailure,
		session.EvPlaybackDone, session.EvInactivity, session.EvShutdown,
	}
	for _, final := range []session.Event{session.EvCancel, session.EvShutdown} {
		m := drive(t, session.ModeChat, session.EvStart, final)
		want := m.Snapshot()
		for _, ev := range all {
			if _, err := m.Fire(ev); !errors.Is(err, session.ErrIgnoredEvent) {
				t.Errorf("%s after %s: err = %v, want ErrIgnoredEvent", ev, final, err)
			}
		}
		if got := m.Snapshot(); got.State != want.State || got.Reason != want.Reason {
			t.Errorf("after %s: snapshot = %+v, want %+v", final, got, want)
		}
	}
}

func TestMachine_TotalOverAllPairs(t *testing.T) {
	t.Parallel()
	// Every event from every reachable state either transitions to a known
	// state or is ignored.
	valid := map[session.State]bool{
		session.StateIdle: true, session.StateListening: true, session.StateProcessing: true,
		session.StateSpeaking: true, session.StateCancelled: true, session.StateTerminated: true,
	}
	paths := [][]session.Event{
		{},
		{session.EvStart},
		{session.EvStart, session.EvUtterance},
		{session.EvStart, session.EvUtterance, session.EvResponse},
	}
	for _, mode := range []session.Mode{session.ModeChat, session.ModeAsk} {
		for _, path := range paths {
			for ev := session.EvStart; ev <= session.EvShutdown; ev++ {
				m := drive(t, mode, path...)
				tr, _ := m.Fire(ev)
				if !valid[tr.To] || tr.To != m.State() {
					t.Errorf("%s %v + %s -> %s", mode, path, ev, tr.To)
				}
			}
		}
	}
}

func TestMachine_HooksRunInOrderWithoutLock(t *testing.T) {
	t.Parallel()
	m := session.NewMachine(session.ModeChat)

	var mu sync.Mutex
	var got []string
	m.OnTransition(func(tr session.Transition) {
		// Reading state inside a hook must not deadlock.
		if m.State() != tr.To {
			t.Errorf("hook sees %s, want %s", m.State(), tr.To)
		}
		mu.Lock()
		got = append(got, "first:"+tr.To.String())
		mu.Unlock()
	})
	m.OnTransition(func(tr session.Transition) {
		mu.Lock()
		got = append(got, "second:"+tr.To.String())
		mu.Unlock()
	})

	_, _ = m.Fire(session.EvStart)
	_, _ = m.Fire(session.EvResponse) // ignored, no hooks

	want := []string{"first:listening", "second:listening"}
	if len(got) != len(want) {
		t.Fatalf("hooks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hook %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMachine_ClockAndSnapshot(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := session.NewMachine(session.ModeAsk, session.WithClock(func() time.Time { return now }))

	tr, err := m.Fire(session.EvStart)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.At.Equal(now) {
		t.Errorf("At = %v, want %v", tr.At, now)
	}
	snap := m.Snapshot()
	if snap.Mode != session.ModeAsk || snap.State != session.StateListening || !snap.Since.Equal(now) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMachine_RecordsTransitionMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	m := session.NewMachine(session.ModeChat, session.WithTransitionMetrics(metrics))
	_, _ = m.Fire(session.EvStart)
	_, _ = m.Fire(session.EvUtterance)
	_, _ = m.Fire(session.EvDegenerate) // processing -> listening
	_, _ = m.Fire(session.EvDegenerate) // listening -> listening, not counted

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	toListening := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "vocalis.session.transitions" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", met.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
				if v, ok := dp.Attributes.Value(attribute.Key("to")); ok && v.AsString() == "listening" {
					toListening += dp.Value
				}
			}
		}
	}
	if total != 3 {
		t.Errorf("transitions = %d, want 3", total)
	}
	if toListening != 2 {
		t.Errorf("to=listening = %d, want 2", toListening)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    session.Mode
		wantErr bool
	}{
		{"wake", session.ModeWake, false},
		{" Chat ", session.ModeChat, false},
		{"ASK", session.ModeAsk, false},
		{"shout", 0, true},
	}
	for _, tt := range tests {
		got, err := session.ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != strings.ToLower(strings.TrimSpace(tt.in)) {
			t.Errorf("String() = %q", got.String())
		}
	}
}

func TestStringers(t *testing.T) {
	t.Parallel()
	if session.StateProcessing.String() != "processing" || session.State(42).String() != "State(42)" {
		t.Error("State.String")
	}
	reasons := map[session.Reason]string{
		session.ReasonNone:       "none",
		session.ReasonCompleted:  "completed",
		session.ReasonGoodbye:    "goodbye",
		session.ReasonInactivity: "inactivity",
		session.ReasonCancelled:  "cancelled",
		session.ReasonFailure:    "failure",
		session.ReasonShutdown:   "shutdown",
		session.Reason(42):       "Reason(42)",
	}
	for r, want := range reasons {
		if got := r.String(); got != want {
			t.Errorf("Reason(%d).String() = %q, want %q", int(r), got, want)
		}
	}
	if session.EvPlaybackDone.String() != "playback_done" || session.Event(99).String() != "Event(99)" {
		t.Error("Event.String")
	}
	if !session.StateCancelled.Terminal() || session.StateSpeaking.Terminal() {
		t.Error("Terminal")
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/internal/observe"
)

// ErrIgnoredEvent is returned by [Machine.Fire] when the event has no effect
// in the current state. The machine is left unchanged; callers usually log
// and carry on.
var ErrIgnoredEvent = errors.New("session: event ignored")

// Transition describes one call to [Machine.Fire] that changed (or
// re-entered) the state.
type Transition struct {
	Mode   Mode
	From   State
	To     State
	Event  Event
	Reason Reason
	At     time.Time
}

// Snapshot is a read-only view of a machine.
type Snapshot struct {
	Mode   Mode
	State  State
	Reason Reason
	// Since is when the current state was entered.
	Since time.Time
}

// MachineOption configures a [Machine].
type MachineOption func(*Machine)

// WithTransitionMetrics records every transition to m.
func WithTransitionMetrics(m *observe.Metrics) MachineOption {
	return func(mc *Machine) { mc.metrics = m }
}

// WithClock overrides time.Now for transition timestamps.
func WithClock(now func() time.Time) MachineOption {
	return func(mc *Machine) { mc.now = now }
}

// Machine is the session state machine. It performs no I/O: the session
// runner fires events and acts on the resulting state.
//
// Transitions are total: every (state, event) pair either moves to a
// defined state or is ignored with [ErrIgnoredEvent]. Cancelled and
// Terminated are absorbing.
//
// All methods are safe for concurrent use; only the owner should call Fire.
type Machine struct {
	mode    Mode
	metrics *observe.Metrics
	now     func() time.Time

	mu     sync.Mutex
	state  State
	reason Reason
	since  time.Time
	hooks  []func(Transition)
}

// NewMachine returns a machine for mode in [StateIdle].
func NewMachine(mode Mode, opts ...MachineOption) *Machine {
	m := &Machine{mode: mode, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.since = m.now()
	return m
}

// Mode returns the machine's interaction mode.
func (m *Machine) Mode() Mode { return m.mode }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reason returns the reason recorded by the last transition.
func (m *Machine) Reason() Reason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Snapshot returns a consistent view of mode, state and reason.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Mode: m.mode, State: m.state, Reason: m.reason, Since: m.since}
}

// OnTransition registers fn to be called after every applied transition.
// Hooks run synchronously on the goroutine that called Fire, in
// registration order, without the machine's lock held.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Fire applies ev. When the event has no effect the returned error wraps
// [ErrIgnoredEvent] and the transition's From and To are both the current
// state.
func (m *Machine) Fire(ev Event) (Transition, error) {
	m.mu.Lock()
	from := m.state
	to, reason, ok := next(m.mode, from, ev)
	if !ok {
		m.mu.Unlock()
		return Transition{Mode: m.mode, From: from, To: from, Event: ev},
			fmt.Errorf("%w: %s in %s", ErrIgnoredEvent, ev, from)
	}
	t := Transition{Mode: m.mode, From: from, To: to, Event: ev, Reason: reason, At: m.now()}
	m.state = to
	m.reason = reason
	m.since = t.At
	hooks := make([]func(Transition), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if m.metrics != nil && from != to {
		m.metrics.RecordTransition(context.Background(), from.String(), to.String())
	}
	for _, h := range hooks {
		h(t)
	}
	return t, nil
}

// next is the transition table.
func next(mode Mode, s State, ev Event) (State, Reason, bool) {
	if s.Terminal() {
		return s, ReasonNone, false
	}
	switch ev {
	case EvShutdown:
		return StateTerminated, ReasonShutdown, true
	case EvCancel:
		return StateCancelled, ReasonCancelled, true
	}

	switch s {
	case StateIdle:
		switch {
		case ev == EvWake && mode == ModeWake:
			return StateListening, ReasonNone, true
		case ev == EvStart && mode != ModeWake:
			return StateListening, ReasonNone, true
		}

	case StateListening:
		switch ev {
		case EvUtterance:
			return StateProcessing, ReasonNone, true
		case EvDegenerate:
			return StateListening, ReasonNone, true
		case EvInactivity:
			if mode == ModeWake {
				return StateIdle, ReasonInactivity, true
			}
			return StateTerminated, ReasonInactivity, true
		}

	case StateProcessing:
		switch ev {
		case EvResponse:
			return StateSpeaking, ReasonNone, true
		case EvGoodbye:
			return StateTerminated, ReasonGoodbye, true
		case EvFailure, EvDegenerate:
			if mode == ModeAsk {
				return StateTerminated, ReasonFailure, true
			}
			return StateListening, ReasonNone, true
		}

	case StateSpeaking:
		if ev == EvPlaybackDone {
			switch mode {
			case ModeAsk:
				return StateTerminated, ReasonCompleted, true
			case ModeWake:
				return StateIdle, ReasonNone, true
			default:
				return StateListening, ReasonNone, true
			}
		}
	}
	return s, ReasonNone, false
}

package session

import (
	"fmt"
	"strings"
)

// Mode selects which transitions a session permits. It is fixed for the
// lifetime of a [Machine].
type Mode int

const (
	// ModeWake waits in Idle for the wake phrase before each exchange.
	ModeWake Mode = iota
	// ModeChat listens continuously until goodbye, cancel or inactivity.
	ModeChat
	// ModeAsk answers exactly one question.
	ModeAsk
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ModeWake:
		return "wake"
	case ModeChat:
		return "chat"
	case ModeAsk:
		return "ask"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "wake", "chat" or "ask" (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wake":
		return ModeWake, nil
	case "chat":
		return ModeChat, nil
	case "ask":
		return ModeAsk, nil
	default:
		return 0, fmt.Errorf("session: unknown mode %q (want wake, chat or ask)", s)
	}
}

// State is the session's position in the interaction cycle.
type State int

const (
	// StateIdle waits for the wake phrase (wake mode) or the start signal.
	StateIdle State = iota
	// StateListening waits for the next utterance.
	StateListening
	// StateProcessing transcribes the utterance and waits for the responder.
	StateProcessing
	// StateSpeaking plays the reply.
	StateSpeaking
	// StateCancelled is absorbing: the user cancelled the session.
	StateCancelled
	// StateTerminated is absorbing: the session ended, see [Reason].
	StateTerminated
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateCancelled:
		return "cancelled"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateTerminated
}

// Reason explains why the machine entered its current state. It is set on
// terminal transitions and on the wake-mode return to Idle after inactivity;
// every other transition clears it.
type Reason int

const (
	// ReasonNone is the reason of every non-terminal state.
	ReasonNone Reason = iota
	// ReasonCompleted ends an ask session after its one reply was spoken.
	ReasonCompleted
	// ReasonGoodbye follows a goodbye command.
	ReasonGoodbye
	// ReasonInactivity follows InactivityTimeout without user speech; in
	// wake mode it labels the return to Idle.
	ReasonInactivity
	// ReasonCancelled follows a cancel command or Session.Cancel.
	ReasonCancelled
	// ReasonFailure ends an ask session whose question could not be
	// answered.
	ReasonFailure
	// ReasonShutdown follows the end of the run context or of the audio
	// source.
	ReasonShutdown
)

// String implements [fmt.Stringer].
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonCompleted:
		return "completed"
	case ReasonGoodbye:
		return "goodbye"
	case ReasonInactivity:
		return "inactivity"
	case ReasonCancelled:
		return "cancelled"
	case ReasonFailure:
		return "failure"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Event drives the machine.
type Event int

const (
	// EvStart enters Listening in chat and ask mode.
	EvStart Event = iota
	// EvWake reports a wake phrase match in Idle.
	EvWake
	// EvUtterance hands a sealed utterance to Processing.
	EvUtterance
	// EvDegenerate reports an utterance that produced no usable text.
	EvDegenerate
	// EvResponse reports that the responder answered.
	EvResponse
	// EvCancel is an explicit user cancellation (command phrase or key).
	EvCancel
	// EvGoodbye reports a goodbye phrase.
	EvGoodbye
	// EvFailure reports a transcriber or responder failure.
	EvFailure
	// EvPlaybackDone reports that the reply finished playing.
	EvPlaybackDone
	// EvInactivity reports that the inactivity timer expired.
	EvInactivity
	// EvShutdown reports that the process or the audio source is going away.
	EvShutdown
)

// String implements [fmt.Stringer].
func (e Event) String() string {
	switch e {
	case EvStart:
		return "start"
	case EvWake:
		return "wake"
	case EvUtterance:
		return "utterance"
	case EvDegenerate:
		return "degenerate"
	case EvResponse:
		return "response"
	case EvCancel:
		return "cancel"
	case EvGoodbye:
		return "goodbye"
	case EvFailure:
		return "failure"
	case EvPlaybackDone:
		return "playback_done"
	case EvInactivity:
		return "inactivity"
	case EvShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

package speech

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by [Pipeline.Speak] when another Speak call on the same
// pipeline is still running.
var ErrBusy = errors.New("speech: pipeline is already speaking")

// SynthesisError reports a unit that could not be synthesised. The unit is
// skipped; the rest of the reply still plays.
type SynthesisError struct {
	Unit Unit
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech: synthesize unit %d: %v", e.Unit.Index, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PlaybackError reports a unit the sink failed to play.
type PlaybackError struct {
	Unit Unit
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("speech: play unit %d: %v", e.Unit.Index, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

package session

import "fmt"

// TranscriptionError reports a transcriber failure during a turn. The
// session recovers from it (see [Machine]).
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("session: transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// ResponderError reports a responder failure during a turn.
type ResponderError struct {
	Err error
}

func (e *ResponderError) Error() string {
	return fmt.Sprintf("session: responder failed: %v", e.Err)
}

func (e *ResponderError) Unwrap() error { return e.Err }

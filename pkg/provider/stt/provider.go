// Package stt defines the Transcriber interface for batch speech-to-text.
//
// The utterance detector in internal/listen already segments the microphone
// stream, so a transcriber never sees a live stream: it receives one sealed
// [audio.Utterance] at a time and returns its text. Backends live in
// sub-packages (whisper, deepgram) and a recording double lives in stt/mock.
//
// Implementations must be safe for concurrent use; the session runner may
// transcribe a "cancel" probe while a turn's transcription is still running.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ErrEmptyTranscript is returned when the backend produced no text for an
// utterance. Callers treat it as a degenerate (noise-only) utterance rather
// than a failure.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// DefaultSampleRate is the rate batch backends expect. Utterances captured at
// a different rate are resampled before upload.
const DefaultSampleRate = 16000

// Transcriber converts one utterance into text.
type Transcriber interface {
	// Transcribe returns the recognised text of u. It blocks until the
	// backend answers or ctx is cancelled. An utterance that contains no
	// recognisable speech yields [ErrEmptyTranscript].
	Transcribe(ctx context.Context, u *audio.Utterance) (string, error)
}

// Samples16k returns the utterance's samples at [DefaultSampleRate].
func Samples16k(u *audio.Utterance) []int16 {
	if u.SampleRate <= 0 {
		return u.Samples()
	}
	return audio.Resample(u.Samples(), u.SampleRate, DefaultSampleRate)
}

// PCM16k is [Samples16k] as little-endian bytes, the form upload APIs take.
func PCM16k(u *audio.Utterance) []byte {
	return audio.SamplesToPCM(Samples16k(u))
}

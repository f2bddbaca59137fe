// Package tts defines the Synthesizer interface for text-to-speech backends.
//
// A synthesizer turns one sentence of text into one complete audio buffer.
// The speech pipeline calls it from a small pool of workers and plays the
// buffers back in sentence order, so implementations only need to handle a
// single request at a time per call. They must, however, be safe for
// concurrent use: several sentences of one reply are synthesised in
// parallel.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text with voice and returns the complete audio.
	//
	// The returned buffer carries its own sample rate and channel count;
	// sinks resample as needed. Returns an error if the backend fails or ctx
	// is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Buffer, error)
}

// VoiceLister is implemented by synthesizers that can enumerate their
// voices.
type VoiceLister interface {
	// ListVoices returns the voices available from the backend.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

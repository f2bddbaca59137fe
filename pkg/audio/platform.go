// Package audio defines the audio data types and device abstractions used by
// vocalis.
//
// The two device abstractions are:
//
//   - [Source]: a lazily pulled sequence of fixed-size capture frames.
//   - [Sink]: an output device that plays synthesized [Buffer] values.
//
// Implementations live in sub-packages (audio/device for PortAudio hardware,
// audio/wavfile for WAV fixtures, audio/mock for tests).
//
// Ownership: the microphone is owned exclusively by the capture loop that
// reads the Source; the output device is owned exclusively by the playback
// sequencer that calls Play.
package audio

import (
	"context"
	"errors"
)

// ErrClosed is returned by Source.Read and Sink.Play after Close.
var ErrClosed = errors.New("audio: device closed")

// Source produces capture frames in arrival order.
//
// Read blocks until the next frame is available, ctx is cancelled, or the
// source is exhausted (io.EOF). Every frame returned by one Source has the
// same length and sample rate.
type Source interface {
	Read(ctx context.Context) (Frame, error)

	// Close releases the device. Subsequent Read calls return [ErrClosed].
	Close() error
}

// Sink plays synthesized audio.
//
// Play blocks until buf has been fully handed to the device or ctx is
// cancelled. Stop aborts a Play that is in progress (mid-buffer) and is safe
// to call when nothing is playing.
//
// Implementations must be safe for one writer plus concurrent Stop calls.
type Sink interface {
	Play(ctx context.Context, buf Buffer) error
	Stop()
	Close() error
}

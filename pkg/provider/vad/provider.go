// Package vad defines the speech-probability interfaces used by the utterance
// detector.
//
// A VAD backend wraps a frame-level speech classifier (an energy heuristic, a
// neural model, ...) and exposes it as a per-stream [Model]: one frame in,
// one probability in [0, 1] out. The hysteresis that turns those scores into
// utterance boundaries lives in internal/listen, so a Model never needs to
// track speech state across frames beyond its own smoothing.
//
// Probability is synchronous: the capture loop calls it once per
// frame and must never block on it.
//
// Implementations must be safe for concurrent use across different models.
// A single Model should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "github.com/MrWong99/vocalis/pkg/audio"

// Config holds the parameters for a VAD model.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to Probability. Common values: 16000, 48000.
	SampleRate int

	// FrameSize is the number of samples per frame (512 at 16 kHz ≈ 32 ms).
	FrameSize int
}

// Model scores individual frames.
type Model interface {
	// Probability returns the likelihood in [0, 1] that frame contains speech.
	// Returns an error if the frame does not match the configured size or the
	// backend fails.
	Probability(frame audio.Frame) (float64, error)

	// Reset clears any smoothing state without releasing resources.
	Reset()

	// Close releases all resources. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD models. It is the top-level interface
// implemented by each backend and the unit registered in the provider
// registry.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewModel simultaneously to create independent models.
type Engine interface {
	// NewModel creates a model for one audio stream. Returns an error if the
	// configuration is unsupported.
	NewModel(cfg Config) (Model, error)
}

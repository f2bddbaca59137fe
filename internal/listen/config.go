package listen

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the detector thresholds and framing. Use [DefaultConfig] for
// the usual 16 kHz / 512-sample setup and override individual fields.
type Config struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int

	// FrameSize is the number of samples in every frame passed to Feed.
	FrameSize int

	// StartThreshold opens an utterance when a frame's speech probability is
	// at or above it.
	StartThreshold float64

	// ContinueThreshold keeps an open utterance alive. Must not exceed
	// StartThreshold.
	ContinueThreshold float64

	// SilenceDuration is how long the probability must stay below
	// ContinueThreshold before the utterance is sealed.
	SilenceDuration time.Duration

	// PreBufferSize is the number of frames preceding the trigger that are
	// prepended to every utterance.
	PreBufferSize int

	// MinSpeechFrames is the number of frames at or above ContinueThreshold
	// (trigger included) required before UtteranceStarted is reported.
	MinSpeechFrames int

	// TrailingSilence is the number of frames of the terminating silence run
	// kept at the end of a sealed utterance. Zero ends the utterance exactly
	// where that run began.
	TrailingSilence int
}

// DefaultConfig returns the detector defaults: 0.85/0.5 hysteresis, 2 s of
// silence, 10 frames of pre-roll at 16 kHz with 512-sample frames.
//
// Two fields deviate from plain hysteresis. MinSpeechFrames is 2, so a
// single loud frame never opens an utterance, and TrailingSilence is 10, so
// the sealed audio keeps the first 10 frames of the closing silence run. Set
// MinSpeechFrames to 1 and TrailingSilence to 0 for the exact behaviour:
// UtteranceStarted on the trigger frame and an utterance that ends where the
// silence run began.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameSize:         512,
		StartThreshold:    0.85,
		ContinueThreshold: 0.5,
		SilenceDuration:   2 * time.Second,
		PreBufferSize:     10,
		MinSpeechFrames:   2,
		TrailingSilence:   10,
	}
}

// FrameDuration returns the wall-clock length of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// SilenceFrames returns the number of consecutive sub-threshold frames that
// end an utterance: ceil(SilenceDuration / FrameDuration), at least one.
func (c Config) SilenceFrames() int {
	if c.SampleRate <= 0 || c.FrameSize <= 0 {
		return 1
	}
	num := int64(c.SilenceDuration) * int64(c.SampleRate)
	den := int64(c.FrameSize) * int64(time.Second)
	n := int((num + den - 1) / den)
	return max(n, 1)
}

// Validate reports every violated rule joined into one error.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame_size must be positive, got %d", c.FrameSize))
	}
	if c.StartThreshold < 0 || c.StartThreshold > 1 {
		errs = append(errs, fmt.Errorf("start_threshold must be in [0,1], got %v", c.StartThreshold))
	}
	if c.ContinueThreshold < 0 || c.ContinueThreshold > 1 {
		errs = append(errs, fmt.Errorf("continue_threshold must be in [0,1], got %v", c.ContinueThreshold))
	}
	if c.ContinueThreshold > c.StartThreshold {
		errs = append(errs, fmt.Errorf("continue_threshold %v exceeds start_threshold %v", c.ContinueThreshold, c.StartThreshold))
	}
	if c.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("silence_duration must be positive, got %s", c.SilenceDuration))
	}
	if c.PreBufferSize < 0 {
		errs = append(errs, fmt.Errorf("pre_buffer_size must not be negative, got %d", c.PreBufferSize))
	}
	if c.MinSpeechFrames < 1 {
		errs = append(errs, fmt.Errorf("min_speech_frames must be at least 1, got %d", c.MinSpeechFrames))
	}
	if c.TrailingSilence < 0 {
		errs = append(errs, fmt.Errorf("trailing_silence must not be negative, got %d", c.TrailingSilence))
	}
	return errors.Join(errs...)
}

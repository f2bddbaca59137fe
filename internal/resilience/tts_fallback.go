package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// SynthesizerFallback implements [tts.Synthesizer] with failover across
// several TTS backends. Each backend has its own circuit breaker.
//
// The voice profile is passed unchanged to whichever backend answers; a
// profile whose Provider names a different backend is still honoured by ID
// where the backend supports it.
type SynthesizerFallback struct {
	group[tts.Synthesizer]
}

var (
	_ tts.Synthesizer = (*SynthesizerFallback)(nil)
	_ tts.VoiceLister = (*SynthesizerFallback)(nil)
)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend.
func NewSynthesizerFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *SynthesizerFallback {
	cfg.CircuitBreaker.IsFailure = notAnswer(cfg.CircuitBreaker.IsFailure, tts.ErrEmptyText)
	return &SynthesizerFallback{group[tts.Synthesizer]{NewFallbackGroup(primary, primaryName, cfg)}}
}

// Synthesize renders text on the first healthy backend.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Buffer, error) {
	return ExecuteWithResult(f.fg, func(s tts.Synthesizer) (audio.Buffer, error) {
		return s.Synthesize(ctx, text, voice)
	})
}

// errNoVoiceList is charged to backends that cannot enumerate voices so the
// next one is asked.
var errNoVoiceList = errors.New("resilience: backend cannot list voices")

// ListVoices returns the voices of the first healthy backend that implements
// [tts.VoiceLister].
func (f *SynthesizerFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.fg, func(s tts.Synthesizer) ([]tts.VoiceProfile, error) {
		vl, ok := s.(tts.VoiceLister)
		if !ok {
			return nil, errNoVoiceList
		}
		return vl.ListVoices(ctx)
	})
}

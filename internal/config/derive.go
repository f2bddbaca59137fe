package config

import (
	"fmt"
	"time"

	"github.com/MrWong99/vocalis/internal/listen"
	"github.com/MrWong99/vocalis/internal/resilience"
	"github.com/MrWong99/vocalis/internal/session"
	"github.com/MrWong99/vocalis/internal/wake"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// ─── Runtime views ───

// Listen returns the utterance detector settings.
func (c *Config) Listen() listen.Config {
	trailing := DefaultTrailingSilence
	if c.VAD.TrailingSilence != nil {
		trailing = *c.VAD.TrailingSilence
	}
	return listen.Config{
		SampleRate:        c.Audio.SampleRate,
		FrameSize:         c.Audio.FrameSize,
		StartThreshold:    c.VAD.StartThreshold,
		ContinueThreshold: c.VAD.ContinueThreshold,
		SilenceDuration:   c.VAD.SilenceDuration,
		PreBufferSize:     c.VAD.PreBuffer,
		MinSpeechFrames:   c.VAD.MinSpeechFrames,
		TrailingSilence:   trailing,
	}
}

// Mode returns the parsed session mode. Validated configs never fail.
func (c *Config) Mode() session.Mode {
	m, err := session.ParseMode(c.Session.Mode)
	if err != nil {
		return session.ModeWake
	}
	return m
}

// SessionConfig returns the per-session settings for mode.
func (c *Config) SessionConfig(mode session.Mode) session.Config {
	return session.Config{
		Mode:              mode,
		InactivityTimeout: c.Session.InactivityTimeout,
		UtteranceQueue:    c.Session.UtteranceQueue,
		Acknowledgements:  c.Wake.Acknowledgements,
		Farewells:         c.Session.Farewells,
	}
}

// WakeMatcher builds the wake phrase matcher.
func (c *Config) WakeMatcher() *wake.Matcher {
	opts := []wake.Option{wake.WithThreshold(c.Wake.Threshold)}
	if len(c.Wake.Variants) > 0 {
		opts = append(opts, wake.WithVariants(c.Wake.Variants...))
	}
	if c.Wake.DisablePhonetic {
		opts = append(opts, wake.WithoutPhonetic())
	}
	return wake.New(c.Wake.Phrase, opts...)
}

// Voice returns the configured TTS voice.
func (c *Config) Voice() tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          c.Speech.Voice.VoiceID,
		Provider:    c.Speech.Voice.Provider,
		SpeedFactor: c.Speech.Voice.SpeedFactor,
	}
}

// Fallback returns the circuit breaker settings for provider groups.
func (c *Config) Fallback() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  c.Providers.Breaker.MaxFailures,
			ResetTimeout: c.Providers.Breaker.ResetTimeout,
		},
	}
}

// ─── Provider options ───

// StringOpt returns Options[key] when it is a string, or "".
func (e ProviderEntry) StringOpt(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// StringsOpt returns Options[key] as a string slice. A single string is
// returned as a one-element slice.
func (e ProviderEntry) StringsOpt(key string) []string {
	switch v := e.Options[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// IntOpt returns Options[key] as an int, or def when absent or not a number.
func (e ProviderEntry) IntOpt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// FloatOpt returns Options[key] as a float64, or def when absent or not a
// number.
func (e ProviderEntry) FloatOpt(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// DurationOpt parses Options[key] ("30s", "1m") or returns def when absent.
func (e ProviderEntry) DurationOpt(key string, def time.Duration) (time.Duration, error) {
	raw, ok := e.Options[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("config: option %q of %q: want a duration string, got %T", key, e.Name, raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: option %q of %q: %w", key, e.Name, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vocalis/internal/session"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native", "deepgram"},
	"tts":       {"coqui", "piper", "elevenlabs"},
	"llm":       {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"responder": {"claudecli", "chat"},
	"vad":       {"energy"},
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultLogLevel        = LogInfo
	DefaultSampleRate      = 16000
	DefaultFrameSize       = 512
	DefaultVolume          = 1.0
	DefaultVADEngine       = "energy"
	DefaultWakePhrase      = "hey claude"
	DefaultWakeThreshold   = 0.85
	DefaultMode            = "wake"
	DefaultContextDir      = ".context"
	DefaultJournalLimit    = 20
	DefaultServiceName     = "vocalis"
	DefaultTrailingSilence = 10
)

// Load reads the YAML configuration file at path from the OS filesystem.
// It is a convenience wrapper around [LoadFs].
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads the YAML configuration file at path from fs and returns a
// validated [Config] with defaults applied.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero field that has a default.
func (c *Config) ApplyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = DefaultFrameSize
	}
	if c.Audio.Volume == 0 {
		c.Audio.Volume = DefaultVolume
	}

	if c.VAD.Engine == "" {
		c.VAD.Engine = DefaultVADEngine
	}
	if c.VAD.StartThreshold == 0 {
		c.VAD.StartThreshold = 0.85
	}
	if c.VAD.ContinueThreshold == 0 {
		c.VAD.ContinueThreshold = 0.5
	}
	if c.VAD.SilenceDuration == 0 {
		c.VAD.SilenceDuration = 2 * time.Second
	}
	if c.VAD.PreBuffer == 0 {
		c.VAD.PreBuffer = 10
	}
	if c.VAD.MinSpeechFrames == 0 {
		c.VAD.MinSpeechFrames = 2
	}
	if c.VAD.TrailingSilence == nil {
		n := DefaultTrailingSilence
		c.VAD.TrailingSilence = &n
	}

	if c.Wake.Phrase == "" {
		c.Wake.Phrase = DefaultWakePhrase
	}
	if c.Wake.Threshold == 0 {
		c.Wake.Threshold = DefaultWakeThreshold
	}

	if c.Session.Mode == "" {
		c.Session.Mode = DefaultMode
	}
	if c.Session.ContextDir == "" {
		c.Session.ContextDir = DefaultContextDir
	}
	if c.Session.Restart == nil {
		restart := true
		c.Session.Restart = &restart
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalMemory
	}
	if c.Journal.Limit == 0 {
		c.Journal.Limit = DefaultJournalLimit
	}

	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", cfg.Audio.FrameSize))
	}
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate must not be negative, got %d", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.Volume < 0 || cfg.Audio.Volume > 2 {
		errs = append(errs, fmt.Errorf("audio.volume %.2f is out of range [0, 2]", cfg.Audio.Volume))
	}

	// VAD
	if err := cfg.Listen().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vad: %w", err))
	}
	if cfg.VAD.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold must not be negative, got %v", cfg.VAD.EnergyThreshold))
	}
	validateProviderName("vad", cfg.VAD.Engine)

	// Wake
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range [0, 1]", cfg.Wake.Threshold))
	}

	// Session
	mode, err := session.ParseMode(cfg.Session.Mode)
	if err != nil {
		errs = append(errs, fmt.Errorf("session.mode: %w", err))
	}
	if cfg.Session.InactivityTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.inactivity_timeout must not be negative, got %s", cfg.Session.InactivityTimeout))
	}
	if cfg.Session.UtteranceQueue < 0 {
		errs = append(errs, fmt.Errorf("session.utterance_queue must not be negative, got %d", cfg.Session.UtteranceQueue))
	}
	if mode == session.ModeWake && strings.TrimSpace(cfg.Wake.Phrase) == "" {
		errs = append(errs, errors.New("wake.phrase is required in wake mode"))
	}

	// Providers
	errs = append(errs, validateProviders("stt", cfg.Providers.STT, true)...)
	errs = append(errs, validateProviders("tts", cfg.Providers.TTS, true)...)
	errs = append(errs, validateProviders("responder", cfg.Providers.Responder, true)...)
	errs = append(errs, validateProviders("llm", cfg.Providers.LLM, false)...)
	if cfg.Providers.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures must not be negative, got %d", cfg.Providers.Breaker.MaxFailures))
	}
	for i, r := range cfg.Providers.Responder {
		if r.Name == "chat" && len(cfg.Providers.LLM) == 0 {
			errs = append(errs, fmt.Errorf("providers.responder[%d]: responder %q requires an LLM provider but providers.llm is not configured", i, r.Name))
		}
	}

	// Speech
	if cfg.Speech.Workers < 0 {
		errs = append(errs, fmt.Errorf("speech.workers must not be negative, got %d", cfg.Speech.Workers))
	}
	if cfg.Speech.SentenceGap < 0 {
		errs = append(errs, fmt.Errorf("speech.sentence_gap must not be negative, got %s", cfg.Speech.SentenceGap))
	}
	if f := cfg.Speech.Voice.SpeedFactor; f != 0 && (f < 0.5 || f > 2.0) {
		errs = append(errs, fmt.Errorf("speech.voice.speed_factor %.2f is out of range [0.5, 2.0]", f))
	}
	if p := cfg.Speech.Voice.Provider; p != "" && len(cfg.Providers.TTS) > 0 && p != cfg.Providers.TTS.Primary().Name {
		slog.Warn("voice provider does not match the primary TTS provider",
			"voice_provider", p,
			"tts_provider", cfg.Providers.TTS.Primary().Name,
		)
	}

	// Journal
	if !cfg.Journal.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("journal.driver %q is invalid; valid values: none, memory, postgres", cfg.Journal.Driver))
	}
	if cfg.Journal.Driver == JournalPostgres && cfg.Journal.DSN == "" {
		errs = append(errs, errors.New("journal.dsn is required when driver is postgres"))
	}
	if cfg.Journal.Limit < 0 {
		errs = append(errs, fmt.Errorf("journal.limit must not be negative, got %d", cfg.Journal.Limit))
	}

	// Observe
	if cfg.Observe.Metrics && cfg.Server.ListenAddr == "" {
		slog.Warn("observe.metrics is enabled but server.listen_addr is empty; /metrics will not be served")
	}
	if r := cfg.Observe.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observe.trace_sample_ratio %g must be between 0 and 1", r))
	}

	return errors.Join(errs...)
}

func validateProviders(kind string, list ProviderList, required bool) []error {
	if len(list) == 0 {
		if required {
			return []error{fmt.Errorf("providers.%s: at least one provider is required", kind)}
		}
		return nil
	}
	var errs []error
	seen := make(map[string]int, len(list))
	for i, e := range list {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s[%d].name is required", kind, i))
			continue
		}
		key := e.Name + "\x00" + e.BaseURL + "\x00" + e.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("providers.%s[%d] duplicates providers.%s[%d]", kind, i, kind, prev))
		}
		seen[key] = i
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

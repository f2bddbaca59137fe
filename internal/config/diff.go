package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged covers the phrase, threshold, variants and phonetic
	// switch. The new matcher is used from the next idle period.
	WakeChanged bool

	// VADChanged covers the detector thresholds and silence duration. The
	// new settings take effect at the next session start.
	VADChanged bool

	// VoiceChanged means the TTS voice should be swapped before the next
	// reply.
	VoiceChanged bool

	// VocabularyChanged means the transcript cleaner must be rebuilt.
	VocabularyChanged bool

	// RestartRequired names the top-level sections that changed but cannot
	// be applied at runtime.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WakeChanged && !d.VADChanged &&
		!d.VoiceChanged && !d.VocabularyChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}

	d.WakeChanged = old.Wake.Phrase != new.Wake.Phrase ||
		old.Wake.Threshold != new.Wake.Threshold ||
		old.Wake.DisablePhonetic != new.Wake.DisablePhonetic ||
		!slices.Equal(old.Wake.Variants, new.Wake.Variants) ||
		!slices.Equal(old.Wake.Acknowledgements, new.Wake.Acknowledgements)

	d.VADChanged = old.Listen() != new.Listen()
	if old.VAD.Engine != new.VAD.Engine || old.VAD.EnergyThreshold != new.VAD.EnergyThreshold {
		d.RestartRequired = append(d.RestartRequired, "vad.engine")
	}

	d.VoiceChanged = old.Speech.Voice != new.Speech.Voice

	d.VocabularyChanged = !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) ||
		old.Transcript.MinDuration != new.Transcript.MinDuration

	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"audio", old.Audio, new.Audio},
		{"session", old.Session, new.Session},
		{"providers", old.Providers, new.Providers},
		{"journal", old.Journal, new.Journal},
		{"observe", old.Observe, new.Observe},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	speechOld, speechNew := old.Speech, new.Speech
	speechOld.Voice, speechNew.Voice = VoiceConfig{}, VoiceConfig{}
	if speechOld != speechNew {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}

	return d
}

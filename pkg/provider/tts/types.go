package tts

// VoiceProfile selects and tunes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (a Coqui speaker such as
	// "p258", an ElevenLabs voice id, ...). Empty selects the backend
	// default.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means
	// the default.
	SpeedFactor float64

	// Language is an optional language code for multilingual models.
	Language string

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}

// Speed returns SpeedFactor, or 1 when unset.
func (v VoiceProfile) Speed() float64 {
	if v.SpeedFactor <= 0 {
		return 1
	}
	return v.SpeedFactor
}

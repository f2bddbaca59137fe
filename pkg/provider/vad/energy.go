package vad

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/vocalis/pkg/audio"
)

const (
	// DefaultThreshold is the RMS level (int16 units) treated as the
	// speech/silence midpoint when no calibration is available.
	DefaultThreshold = 1000.0

	// defaultSteepness shapes the logistic curve: at 1.3× threshold the
	// probability is ≈ 0.86, at 1× it is exactly 0.5.
	defaultSteepness = 6.0
)

// ErrFrameSize is returned when a frame does not match the configured size.
var ErrFrameSize = errors.New("vad: unexpected frame size")

// EnergyOption configures an [EnergyEngine].
type EnergyOption func(*EnergyEngine)

// WithThreshold sets the RMS midpoint. Values <= 0 are ignored.
func WithThreshold(rms float64) EnergyOption {
	return func(e *EnergyEngine) {
		if rms > 0 {
			e.threshold = rms
		}
	}
}

// WithCalibration uses the adaptive threshold from a noise-floor calibration.
func WithCalibration(c Calibration) EnergyOption {
	return func(e *EnergyEngine) {
		if c.Threshold > 0 {
			e.threshold = c.Threshold
		}
	}
}

// WithSmoothing sets the exponential smoothing factor in [0, 1). Zero
// disables smoothing; 0.3 keeps 30% of the previous score.
func WithSmoothing(alpha float64) EnergyOption {
	return func(e *EnergyEngine) {
		if alpha >= 0 && alpha < 1 {
			e.smoothing = alpha
		}
	}
}

// EnergyEngine is a pure-Go [Engine] that maps frame RMS energy onto a
// speech probability with a logistic curve centred on a noise-derived
// threshold. It needs no model files and is the default backend.
type EnergyEngine struct {
	threshold float64
	steepness float64
	smoothing float64
}

var _ Engine = (*EnergyEngine)(nil)

// NewEnergyEngine returns an EnergyEngine with the given options applied.
func NewEnergyEngine(opts ...EnergyOption) *EnergyEngine {
	e := &EnergyEngine{
		threshold: DefaultThreshold,
		steepness: defaultSteepness,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Threshold returns the RMS midpoint in use.
func (e *EnergyEngine) Threshold() float64 { return e.threshold }

// NewModel implements [Engine].
func (e *EnergyEngine) NewModel(cfg Config) (Model, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("vad: energy: frame size must be positive, got %d", cfg.FrameSize)
	}
	return &energyModel{
		frameSize: cfg.FrameSize,
		threshold: e.threshold,
		steepness: e.steepness,
		smoothing: e.smoothing,
	}, nil
}

type energyModel struct {
	frameSize int
	threshold float64
	steepness float64
	smoothing float64
	prev      float64
	primed    bool
}

func (m *energyModel) Probability(frame audio.Frame) (float64, error) {
	if len(frame.Samples) != m.frameSize {
		return 0, fmt.Errorf("%w: got %d samples, want %d", ErrFrameSize, len(frame.Samples), m.frameSize)
	}
	p := EnergyProbability(audio.RMS(frame.Samples), m.threshold, m.steepness)
	if m.smoothing > 0 && m.primed {
		p = m.smoothing*m.prev + (1-m.smoothing)*p
	}
	m.prev, m.primed = p, true
	return p, nil
}

func (m *energyModel) Reset() {
	m.prev, m.primed = 0, false
}

func (m *energyModel) Close() error { return nil }

// EnergyProbability maps an RMS level onto [0, 1] with a logistic curve whose
// midpoint is threshold.
func EnergyProbability(rms, threshold, steepness float64) float64 {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	x := steepness * (rms/threshold - 1)
	return 1 / (1 + math.Exp(-x))
}

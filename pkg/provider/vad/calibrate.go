package vad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/audio"
)

const (
	// DefaultCalibrationFrames is the number of frames sampled by Calibrate
	// when n <= 0.
	DefaultCalibrationFrames = 50

	// minCalibratedThreshold keeps a silent room from producing a threshold
	// so low that breathing triggers speech.
	minCalibratedThreshold = 1000.0
)

// Calibration is the measured ambient noise level of a capture device.
type Calibration struct {
	// NoiseFloor is mean + 2·stddev of the sampled frame RMS values.
	NoiseFloor float64 `json:"noise_floor"`

	// Threshold is max(3·NoiseFloor, 1000), used as the energy midpoint.
	Threshold float64 `json:"threshold"`

	// SampleRate of the device at calibration time.
	SampleRate int `json:"sample_rate"`

	// CalibratedAt records when the measurement was taken.
	CalibratedAt time.Time `json:"calibrated_at"`
}

// Calibrate reads n frames of ambient audio from src and derives a noise
// floor. The user should stay silent while it runs.
func Calibrate(ctx context.Context, src audio.Source, n int) (Calibration, error) {
	if n <= 0 {
		n = DefaultCalibrationFrames
	}
	levels := make([]float64, 0, n)
	rate := 0
	for len(levels) < n {
		f, err := src.Read(ctx)
		if err != nil {
			if len(levels) > 0 && !errors.Is(err, context.Canceled) {
				break
			}
			return Calibration{}, fmt.Errorf("vad: calibrate: %w", err)
		}
		rate = f.SampleRate
		levels = append(levels, audio.RMS(f.Samples))
	}
	return calibrationFromLevels(levels, rate), nil
}

func calibrationFromLevels(levels []float64, rate int) Calibration {
	var sum float64
	for _, l := range levels {
		sum += l
	}
	mean := sum / float64(len(levels))
	var sq float64
	for _, l := range levels {
		sq += (l - mean) * (l - mean)
	}
	std := math.Sqrt(sq / float64(len(levels)))
	floor := mean + 2*std
	return Calibration{
		NoiseFloor:   floor,
		Threshold:    math.Max(3*floor, minCalibratedThreshold),
		SampleRate:   rate,
		CalibratedAt: time.Now().UTC(),
	}
}

// SaveCalibration writes c as JSON to path on fs, creating parent
// directories.
func SaveCalibration(fs afero.Fs, path string, c Calibration) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vad: save calibration: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("vad: save calibration: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("vad: save calibration: %w", err)
	}
	return nil
}

// LoadCalibration reads a calibration written by [SaveCalibration].
// A missing file returns an error wrapping [os.ErrNotExist].
func LoadCalibration(fs afero.Fs, path string) (Calibration, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Calibration{}, fmt.Errorf("vad: load calibration: %w", err)
	}
	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("vad: load calibration %q: %w", path, err)
	}
	return c, nil
}

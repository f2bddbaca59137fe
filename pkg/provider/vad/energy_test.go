package vad_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/mock"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

func constantFrame(n int, amp int16) audio.Frame {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return audio.Frame{Samples: s, SampleRate: 16000}
}

func TestEnergyProbability_Midpoint(t *testing.T) {
	t.Parallel()
	if got := vad.EnergyProbability(1000, 1000, 6); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("EnergyProbability at threshold = %v, want 0.5", got)
	}
	if got := vad.EnergyProbability(0, 1000, 6); got > 0.01 {
		t.Errorf("EnergyProbability(silence) = %v, want < 0.01", got)
	}
	if got := vad.EnergyProbability(3000, 1000, 6); got < 0.99 {
		t.Errorf("EnergyProbability(loud) = %v, want > 0.99", got)
	}
}

func TestEnergyModel_LoudAndQuiet(t *testing.T) {
	t.Parallel()
	eng := vad.NewEnergyEngine(vad.WithThreshold(500))
	m, err := eng.NewModel(vad.Config{SampleRate: 16000, FrameSize: 512})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	defer m.Close()

	loud, err := m.Probability(constantFrame(512, 2000))
	if err != nil {
		t.Fatalf("Probability: %v", err)
	}
	if loud < 0.85 {
		t.Errorf("loud probability = %v, want >= 0.85", loud)
	}
	quiet, _ := m.Probability(constantFrame(512, 50))
	if quiet > 0.1 {
		t.Errorf("quiet probability = %v, want <= 0.1", quiet)
	}
}

func TestEnergyModel_FrameSize(t *testing.T) {
	t.Parallel()
	m, _ := vad.NewEnergyEngine().NewModel(vad.Config{SampleRate: 16000, FrameSize: 512})
	_, err := m.Probability(constantFrame(100, 10))
	if !errors.Is(err, vad.ErrFrameSize) {
		t.Fatalf("err = %v, want ErrFrameSize", err)
	}
}

func TestEnergyEngine_InvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := vad.NewEnergyEngine().NewModel(vad.Config{FrameSize: 512}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := vad.NewEnergyEngine().NewModel(vad.Config{SampleRate: 16000}); err == nil {
		t.Error("expected error for zero frame size")
	}
}

func TestEnergyModel_Smoothing(t *testing.T) {
	t.Parallel()
	m, _ := vad.NewEnergyEngine(vad.WithThreshold(500), vad.WithSmoothing(0.5)).
		NewModel(vad.Config{SampleRate: 16000, FrameSize: 64})
	first, _ := m.Probability(constantFrame(64, 4000))
	second, _ := m.Probability(constantFrame(64, 0))
	// Half of the previous loud score carries into the silent frame.
	if second < first/2-0.01 {
		t.Errorf("smoothed = %v, want >= %v", second, first/2)
	}
	m.Reset()
	third, _ := m.Probability(constantFrame(64, 0))
	if third > 0.01 {
		t.Errorf("after Reset = %v, want unsmoothed silence", third)
	}
}

func TestCalibrate(t *testing.T) {
	t.Parallel()
	var frames []audio.Frame
	for range 10 {
		frames = append(frames, constantFrame(512, 100))
	}
	c, err := vad.Calibrate(context.Background(), mock.NewSource(frames...), 10)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if math.Abs(c.NoiseFloor-100) > 1e-6 {
		t.Errorf("NoiseFloor = %v, want 100", c.NoiseFloor)
	}
	// 3 × 100 is below the floor clamp.
	if c.Threshold != 1000 {
		t.Errorf("Threshold = %v, want 1000", c.Threshold)
	}
	if c.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", c.SampleRate)
	}
}

func TestCalibrate_ShortSource(t *testing.T) {
	t.Parallel()
	src := mock.NewSource(constantFrame(512, 600), constantFrame(512, 600))
	c, err := vad.Calibrate(context.Background(), src, 50)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if math.Abs(c.Threshold-1800) > 1e-6 {
		t.Errorf("Threshold = %v, want 1800", c.Threshold)
	}
}

func TestCalibration_SaveLoad(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	path := filepath.Join("config", "nested", "noise.json")
	want := vad.Calibration{NoiseFloor: 321, Threshold: 1000, SampleRate: 48000}
	if err := vad.SaveCalibration(fs, path, want); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}
	got, err := vad.LoadCalibration(fs, path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if got.NoiseFloor != want.NoiseFloor || got.Threshold != want.Threshold || got.SampleRate != want.SampleRate {
		t.Errorf("LoadCalibration = %+v, want %+v", got, want)
	}

	_, err = vad.LoadCalibration(fs, "missing.json")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

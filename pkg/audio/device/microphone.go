package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vocalis/pkg/audio"
)

var _ audio.Source = (*Microphone)(nil)

// MicrophoneConfig selects the capture device and frame format.
type MicrophoneConfig struct {
	// Device is the device name; empty selects the system default.
	Device string

	// SampleRate of the frames Read returns.
	SampleRate int

	// FrameSize is the number of samples per returned frame.
	FrameSize int

	// CaptureRate, when set and different from SampleRate, opens the device
	// at this rate and resamples every frame. Many USB microphones only
	// offer 48 kHz.
	CaptureRate int
}

// Microphone is a PortAudio capture stream. It is owned by a single reader.
type Microphone struct {
	cfg    MicrophoneConfig
	stream *portaudio.Stream
	in     []int16

	mu      sync.Mutex
	elapsed time.Duration
	closed  bool
}

// OpenMicrophone opens and starts a mono capture stream.
func OpenMicrophone(cfg MicrophoneConfig) (*Microphone, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("device: invalid microphone format %d Hz / %d samples", cfg.SampleRate, cfg.FrameSize)
	}
	if cfg.CaptureRate <= 0 {
		cfg.CaptureRate = cfg.SampleRate
	}
	dev, err := find(cfg.Device, true)
	if err != nil {
		return nil, err
	}

	m := &Microphone{
		cfg: cfg,
		in:  make([]int16, cfg.FrameSize*cfg.CaptureRate/cfg.SampleRate),
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.CaptureRate)
	params.FramesPerBuffer = len(m.in)

	m.stream, err = portaudio.OpenStream(params, m.in)
	if err != nil {
		return nil, fmt.Errorf("device: open input %q: %w", dev.Name, err)
	}
	if err := m.stream.Start(); err != nil {
		m.stream.Close()
		return nil, fmt.Errorf("device: start input %q: %w", dev.Name, err)
	}
	return m, nil
}

// Read blocks until the next frame has been captured. An input overflow
// drops samples but is not an error.
func (m *Microphone) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return audio.Frame{}, audio.ErrClosed
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("device: read: %w", err)
	}

	var samples []int16
	if m.cfg.CaptureRate != m.cfg.SampleRate {
		samples = audio.PCMToSamples(audio.ResampleMono16(audio.SamplesToPCM(m.in), m.cfg.CaptureRate, m.cfg.SampleRate))
		samples = fit(samples, m.cfg.FrameSize)
	} else {
		samples = make([]int16, len(m.in))
		copy(samples, m.in)
	}
	f := audio.Frame{Samples: samples, SampleRate: m.cfg.SampleRate, Timestamp: m.elapsed}
	m.elapsed += f.Duration()
	return f, nil
}

// Close stops and closes the stream. It is idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return errors.Join(m.stream.Stop(), m.stream.Close())
}

// fit pads or truncates s to exactly n samples.
func fit(s []int16, n int) []int16 {
	if len(s) >= n {
		return s[:n]
	}
	out := make([]int16, n)
	copy(out, s)
	return out
}

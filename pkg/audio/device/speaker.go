package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vocalis/pkg/audio"
)

var _ audio.Sink = (*Speaker)(nil)

const defaultOutputBuffer = 1024

// SpeakerConfig selects the playback device and format.
type SpeakerConfig struct {
	// Device is the device name; empty selects the system default.
	Device string

	// SampleRate the stream is opened at. Buffers at other rates are
	// resampled.
	SampleRate int

	// Volume scales every buffer. Zero means 1.0.
	Volume float64

	// BufferSize is the samples written per stream call. Stop takes effect
	// between writes. Default 1024.
	BufferSize int
}

// Speaker is a PortAudio mono output stream.
type Speaker struct {
	cfg    SpeakerConfig
	stream *portaudio.Stream
	out    []int16

	playMu sync.Mutex // serialises Play

	mu     sync.Mutex
	stop   chan struct{}
	closed bool
}

// OpenSpeaker opens and starts a mono playback stream.
func OpenSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("device: invalid speaker sample rate %d", cfg.SampleRate)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultOutputBuffer
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 1
	}
	dev, err := find(cfg.Device, false)
	if err != nil {
		return nil, err
	}

	s := &Speaker{
		cfg:  cfg,
		out:  make([]int16, cfg.BufferSize),
		stop: make(chan struct{}),
	}
	params := portaudio.HighLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BufferSize

	s.stream, err = portaudio.OpenStream(params, s.out)
	if err != nil {
		return nil, fmt.Errorf("device: open output %q: %w", dev.Name, err)
	}
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		return nil, fmt.Errorf("device: start output %q: %w", dev.Name, err)
	}
	return s, nil
}

// Play converts buf to the stream format and writes it, returning early on
// Stop or ctx cancellation.
func (s *Speaker) Play(ctx context.Context, buf audio.Buffer) error {
	s.playMu.Lock()
	defer s.playMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrClosed
	}
	stop := s.stop
	s.mu.Unlock()

	samples := audio.PCMToSamples(s.convert(buf))
	for len(samples) > 0 {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n := copy(s.out, samples)
		clear(s.out[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("device: write: %w", err)
		}
	}
	return nil
}

func (s *Speaker) convert(buf audio.Buffer) []byte {
	pcm := buf.PCM
	if buf.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if buf.SampleRate > 0 && buf.SampleRate != s.cfg.SampleRate {
		pcm = audio.ResampleMono16(pcm, buf.SampleRate, s.cfg.SampleRate)
	}
	if s.cfg.Volume != 1 {
		pcm = audio.Scale(pcm, s.cfg.Volume)
	}
	return pcm
}

// Stop aborts the Play in progress, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.stop)
	s.stop = make(chan struct{})
}

// Close stops playback and closes the stream. It is idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.playMu.Lock()
	defer s.playMu.Unlock()
	return errors.Join(s.stream.Stop(), s.stream.Close())
}

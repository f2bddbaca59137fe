// Package wavfile reads and writes 16-bit PCM WAV files as audio devices.
//
// A [Source] replays a recording as capture frames, which lets a session run
// against fixtures instead of a microphone. A [Recorder] is a sink that
// appends everything played to a file. [Decode] parses WAV bytes returned by
// HTTP synthesis backends and [Encode] builds the uploads sent to
// transcription servers.
//
// Files are opened through an [afero.Fs] so tests can use an in-memory
// filesystem.
package wavfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/spf13/afero/mem"

	"github.com/MrWong99/vocalis/pkg/audio"
)

const (
	// DefaultFrameSize matches the detector's default window at 16 kHz.
	DefaultFrameSize = 512

	bitDepth  = 16
	formatPCM = 1
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Recorder)(nil)
)

// Encode wraps mono 16-bit little-endian PCM in an in-memory WAV file.
func Encode(pcm []byte, sampleRate int) ([]byte, error) {
	f := mem.NewFileHandle(mem.CreateFile("encode.wav"))
	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, formatPCM)
	if err := enc.Write(intBuffer(audio.PCMToSamples(pcm), sampleRate)); err != nil {
		return nil, fmt.Errorf("wavfile: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wavfile: finalise header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wavfile: rewind: %w", err)
	}
	return io.ReadAll(f)
}

// Decode parses an in-memory 16-bit PCM WAV file.
func Decode(data []byte) (audio.Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return audio.Buffer{}, errors.New("wavfile: not a valid WAV file")
	}
	if d.BitDepth != bitDepth {
		return audio.Buffer{}, fmt.Errorf("wavfile: unsupported bit depth %d (want %d)", d.BitDepth, bitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("wavfile: decode PCM: %w", err)
	}
	return audio.Buffer{
		PCM:        audio.SamplesToPCM(toInt16(buf.Data)),
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
	}, nil
}

// ─── Source ───

// SourceOption configures a [Source].
type SourceOption func(*Source)

// WithFrameSize sets the samples per frame. Default: [DefaultFrameSize].
func WithFrameSize(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// WithRealtime paces Read so frames arrive at playback speed.
func WithRealtime() SourceOption {
	return func(s *Source) { s.realtime = true }
}

// Source replays a WAV file as mono capture frames. Multi-channel files are
// downmixed by averaging. The final frame is zero-padded so every frame has
// the same length.
type Source struct {
	frameSize int
	realtime  bool

	mu       sync.Mutex
	f        afero.File
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	elapsed  time.Duration
	done     bool
	closed   bool
}

// Open opens path on fs for replay.
func Open(fs afero.Fs, path string, opts ...SourceOption) (*Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %s: %w", path, err)
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("wavfile: %s is not a valid WAV file", path)
	}
	if d.BitDepth != bitDepth {
		f.Close()
		return nil, fmt.Errorf("wavfile: %s: unsupported bit depth %d", path, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: %s: seek to PCM: %w", path, err)
	}

	s := &Source{
		frameSize: DefaultFrameSize,
		f:         f,
		dec:       d,
		channels:  max(int(d.NumChans), 1),
		rate:      int(d.SampleRate),
	}
	for _, o := range opts {
		o(s)
	}
	s.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: s.channels, SampleRate: s.rate},
		Data:   make([]int, s.frameSize*s.channels),
	}
	return s, nil
}

// SampleRate returns the file's sample rate.
func (s *Source) SampleRate() int { return s.rate }

// Read returns the next frame, or io.EOF after the last one.
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return audio.Frame{}, audio.ErrClosed
	case s.done:
		return audio.Frame{}, io.EOF
	}

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return audio.Frame{}, fmt.Errorf("wavfile: read PCM: %w", err)
	}
	if n == 0 {
		s.done = true
		return audio.Frame{}, io.EOF
	}
	if n < len(s.buf.Data) {
		s.done = true
	}

	samples := make([]int16, s.frameSize)
	for i := 0; i < n/s.channels; i++ {
		var sum int
		for c := range s.channels {
			sum += s.buf.Data[i*s.channels+c]
		}
		samples[i] = int16(sum / s.channels)
	}
	frame := audio.Frame{Samples: samples, SampleRate: s.rate, Timestamp: s.elapsed}
	s.elapsed += frame.Duration()

	if s.realtime {
		t := time.NewTimer(frame.Duration())
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return audio.Frame{}, ctx.Err()
		}
	}
	return frame, nil
}

// Close releases the file. It is idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// ─── Recorder ───

// Recorder is an [audio.Sink] that writes every played buffer to a mono WAV
// file at a fixed sample rate, resampling as needed. Stop is a no-op because
// Play never blocks on a device.
type Recorder struct {
	mu     sync.Mutex
	f      afero.File
	enc    *wav.Encoder
	rate   int
	closed bool
}

// Create truncates path on fs and starts a recording at sampleRate.
func Create(fs afero.Fs, path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavfile: invalid sample rate %d", sampleRate)
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: create %s: %w", path, err)
	}
	return &Recorder{
		f:    f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, 1, formatPCM),
		rate: sampleRate,
	}, nil
}

// Play appends buf to the file.
func (r *Recorder) Play(ctx context.Context, buf audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return audio.ErrClosed
	}
	if buf.Empty() {
		return nil
	}

	pcm := buf.PCM
	if buf.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if buf.SampleRate > 0 && buf.SampleRate != r.rate {
		pcm = audio.ResampleMono16(pcm, buf.SampleRate, r.rate)
	}
	if err := r.enc.Write(intBuffer(audio.PCMToSamples(pcm), r.rate)); err != nil {
		return fmt.Errorf("wavfile: write: %w", err)
	}
	return nil
}

// Stop implements [audio.Sink].
func (r *Recorder) Stop() {}

// Close finalises the WAV header and closes the file. It is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.enc.Close(), r.f.Close())
}

func intBuffer(samples []int16, rate int) *goaudio.IntBuffer {
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}

func toInt16(data []int) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		out[i] = int16(max(min(v, 32767), -32768))
	}
	return out
}

package wavfile_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/wavfile"
)

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i * 10)
	}
	return s
}

func record(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	rec, err := wavfile.Create(fs, path, 16000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ctx := context.Background()
	if err := rec.Play(ctx, audio.Buffer{PCM: audio.SamplesToPCM(ramp(1000)), SampleRate: 16000, Channels: 1}); err != nil {
		t.Fatalf("Play mono: %v", err)
	}
	// 100 stereo frames at 8 kHz become 200 mono samples at 16 kHz.
	stereo := make([]byte, 100*4)
	if err := rec.Play(ctx, audio.Buffer{PCM: stereo, SampleRate: 8000, Channels: 2}); err != nil {
		t.Fatalf("Play stereo: %v", err)
	}
	if err := rec.Play(ctx, audio.Buffer{}); err != nil {
		t.Fatalf("Play empty: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := rec.Play(ctx, audio.Buffer{PCM: []byte{1, 0}, SampleRate: 16000, Channels: 1}); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Play after Close = %v, want ErrClosed", err)
	}
}

func TestRecorderThenDecode(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	record(t, fs, "out.wav")

	data, err := afero.ReadFile(fs, "out.wav")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	buf, err := wavfile.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.SampleRate != 16000 || buf.Channels != 1 {
		t.Errorf("format = %d Hz x%d, want 16000 Hz x1", buf.SampleRate, buf.Channels)
	}
	samples := audio.PCMToSamples(buf.PCM)
	if len(samples) != 1200 {
		t.Fatalf("decoded %d samples, want 1200", len(samples))
	}
	if samples[0] != 0 || samples[999] != 9990 {
		t.Errorf("samples[0]=%d samples[999]=%d, want 0 and 9990", samples[0], samples[999])
	}
}

func TestSource_Frames(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	record(t, fs, "in.wav")

	src, err := wavfile.Open(fs, "in.wav", wavfile.WithFrameSize(512))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if src.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", src.SampleRate())
	}

	ctx := context.Background()
	var frames []audio.Frame
	for {
		f, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if len(f.Samples) != 512 {
			t.Errorf("frame %d has %d samples, want 512", i, len(f.Samples))
		}
	}
	if frames[1].Samples[0] != 5120 {
		t.Errorf("frame 1 sample 0 = %d, want 5120", frames[1].Samples[0])
	}
	if frames[1].Timestamp != frames[0].Duration() {
		t.Errorf("frame 1 timestamp = %v, want %v", frames[1].Timestamp, frames[0].Duration())
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after EOF = %v, want io.EOF", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.Read(ctx); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
}

func TestSource_CancelledContext(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	record(t, fs, "in.wav")
	src, err := wavfile.Open(fs, "in.wav", wavfile.WithRealtime())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read = %v, want context.Canceled", err)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if _, err := wavfile.Open(fs, "missing.wav"); err == nil {
		t.Error("Open of a missing file should fail")
	}
	if err := afero.WriteFile(fs, "junk.wav", []byte("definitely not a wav file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := wavfile.Open(fs, "junk.wav"); err == nil {
		t.Error("Open of a non-WAV file should fail")
	}
	if _, err := wavfile.Decode([]byte("RIFF")); err == nil {
		t.Error("Decode of truncated data should fail")
	}
	if _, err := wavfile.Create(fs, "bad.wav", 0); err == nil {
		t.Error("Create with a zero sample rate should fail")
	}
}

func TestEncodeThenDecode(t *testing.T) {
	t.Parallel()

	in := ramp(300)
	data, err := wavfile.Encode(audio.SamplesToPCM(in), 16000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if want := 44 + len(in)*2; len(data) != want {
		t.Errorf("encoded size = %d, want %d", len(data), want)
	}
	buf, err := wavfile.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.SampleRate != 16000 || buf.Channels != 1 {
		t.Errorf("format = %d Hz x%d", buf.SampleRate, buf.Channels)
	}
	if got := audio.PCMToSamples(buf.PCM); !slices.Equal(got, in) {
		t.Errorf("round trip changed %d samples", len(got))
	}
}

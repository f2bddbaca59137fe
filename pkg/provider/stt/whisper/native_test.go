package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper"
)

// nativeModel returns WHISPER_MODEL_PATH or skips the test.
func nativeModel(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	return p
}

func TestNewNative_BadPath(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"", "/nonexistent/ggml-base.bin"} {
		if _, err := whisper.NewNative(path); err == nil {
			t.Errorf("NewNative(%q) succeeded", path)
		}
	}
}

func TestNativeTranscribe(t *testing.T) {
	p, err := whisper.NewNative(nativeModel(t), whisper.WithNativeLanguage("en"), whisper.WithNativeThreads(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	// A tone has no words: a transcript or ErrEmptyTranscript are both fine.
	if _, err := p.Transcribe(context.Background(), tone(16, 48000)); err != nil && !errors.Is(err, stt.ErrEmptyTranscript) {
		t.Errorf("Transcribe: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), &audio.Utterance{}); !errors.Is(err, stt.ErrEmptyTranscript) {
		t.Errorf("empty utterance err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, tone(4, 16000)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx err = %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

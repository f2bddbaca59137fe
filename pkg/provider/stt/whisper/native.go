package whisper

// In-process transcription through the whisper.cpp cgo bindings. Building
// this file needs libwhisper.a and whisper.h reachable through LIBRARY_PATH
// and C_INCLUDE_PATH.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeOption configures a [NativeProvider].
type NativeOption func(*nativeOptions)

type nativeOptions struct {
	language string
	threads  uint
}

// WithNativeLanguage sets the spoken language. Default: "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(o *nativeOptions) { o.language = lang }
}

// WithNativeThreads bounds the CPU threads one inference may use. Zero keeps
// the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(o *nativeOptions) { o.threads = n }
}

// NativeProvider transcribes with a whisper.cpp model loaded into the
// process. The model is shared; each Transcribe call creates its own
// inference context, so calls may overlap.
type NativeProvider struct {
	model whisperlib.Model
	opts  nativeOptions

	closeOnce sync.Once
	closeErr  error
}

// NewNative loads the ggml model file at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	o := nativeOptions{language: defaultLanguage}
	for _, fn := range opts {
		fn(&o)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %s: %w", modelPath, err)
	}
	return &NativeProvider{model: model, opts: o}, nil
}

// Transcribe converts u to 16 kHz float samples and runs inference on them.
// whisper.cpp cannot be interrupted mid-inference; ctx is honoured before
// it starts and while segments are read back.
func (p *NativeProvider) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	if u == nil || u.Len() == 0 {
		return "", stt.ErrEmptyTranscript
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(p.opts.language); err != nil {
		slog.Warn("whisper: language rejected, model default used", "language", p.opts.language, "err", err)
	}
	if p.opts.threads > 0 {
		wctx.SetThreads(p.opts.threads)
	}
	if err := wctx.Process(audio.Float32(stt.Samples16k(u)), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}

	text, err := segments(ctx, wctx)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return text, nil
}

// segments joins the non-blank segment texts of a finished inference.
func segments(ctx context.Context, wctx whisperlib.Context) (string, error) {
	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seg, err := wctx.NextSegment()
		switch {
		case errors.Is(err, io.EOF):
			return b.String(), nil
		case err != nil:
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}

// Close frees the model. Later calls return the first result.
func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

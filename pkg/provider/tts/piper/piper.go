// Package piper synthesises speech by running the piper command-line tool.
//
// Each sentence is one subprocess:
//
//	piper --model <voice>.onnx --output_raw --length_scale <1/speed>
//
// with the text on stdin. Piper writes raw 16-bit little-endian mono PCM to
// stdout at the rate named in the model's <voice>.onnx.json config.
//
//	p, err := piper.New(piper.WithModelDir("/opt/piper/voices"))
//	buf, err := p.Synthesize(ctx, "Hello there.", tts.VoiceProfile{ID: "british_male"})
package piper

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Provider)(nil)

const (
	defaultBinary     = "piper"
	defaultVoice      = "british_male"
	defaultSampleRate = 22050
	defaultKillGrace  = 2 * time.Second
)

// VoiceFiles maps friendly voice names to model files.
var VoiceFiles = map[string]string{
	"alan":           "en_GB-alan-medium.onnx",
	"cori":           "en_GB-cori-medium.onnx",
	"british_male":   "en_GB-alan-medium.onnx",
	"british_female": "en_GB-cori-medium.onnx",
}

// Option configures a [Provider].
type Option func(*Provider)

// WithBinary sets the executable name or path. Default: "piper".
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithModelDir sets the directory relative model names are resolved in.
func WithModelDir(dir string) Option {
	return func(p *Provider) { p.modelDir = dir }
}

// WithDefaultVoice sets the voice used when a request's VoiceProfile has no
// ID. Default: "british_male".
func WithDefaultVoice(id string) Option {
	return func(p *Provider) { p.defaultVoice = id }
}

// WithOutputSampleRate resamples output to rate. Zero keeps the model's
// rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// WithKillGrace sets how long a cancelled subprocess may take to exit after
// SIGTERM before it is killed. Default: 2s.
func WithKillGrace(d time.Duration) Option {
	return func(p *Provider) { p.grace = d }
}

// WithFs sets the filesystem model configs are read from. Default: the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(p *Provider) { p.fs = fs }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider is a [tts.Synthesizer] backed by the piper binary. It is safe for
// concurrent use; every call runs its own process.
type Provider struct {
	binary       string
	modelDir     string
	defaultVoice string
	outputRate   int
	grace        time.Duration
	fs           afero.Fs
	log          *slog.Logger

	mu    sync.Mutex
	rates map[string]int // model path → native sample rate
}

// New returns a Provider. The binary is looked up on PATH at construction so
// a missing install fails early and a fallback synthesizer can take over.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		binary:       defaultBinary,
		defaultVoice: defaultVoice,
		grace:        defaultKillGrace,
		fs:           afero.NewOsFs(),
		log:          slog.Default(),
		rates:        make(map[string]int),
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}
	p.log = p.log.With("component", "piper")
	return p, nil
}

// ModelPath resolves a voice id to a model file: aliases from [VoiceFiles]
// first, then ids ending in .onnx, then <id>.onnx. Relative paths are joined
// to the model directory.
func (p *Provider) ModelPath(id string) string {
	file, ok := VoiceFiles[strings.ToLower(id)]
	switch {
	case ok:
	case strings.HasSuffix(id, ".onnx"):
		file = id
	default:
		file = id + ".onnx"
	}
	if filepath.IsAbs(file) || p.modelDir == "" {
		return file
	}
	return filepath.Join(p.modelDir, file)
}

// LengthScale converts a speed factor to piper's --length_scale, which
// stretches phoneme durations.
func LengthScale(voice tts.VoiceProfile) float64 {
	return 1 / voice.Speed()
}

// modelConfig is the subset of <model>.onnx.json we read.
type modelConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// sampleRate returns the model's native rate, reading its JSON config once.
// A missing or unreadable config falls back to 22050 Hz, the rate of the
// medium voices.
func (p *Provider) sampleRate(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rates[model]; ok {
		return r
	}
	rate := defaultSampleRate
	data, err := afero.ReadFile(p.fs, model+".json")
	if err == nil {
		var mc modelConfig
		if err := json.Unmarshal(data, &mc); err != nil {
			p.log.Warn("ignoring unreadable model config", "path", model+".json", "err", err)
		} else if mc.Audio.SampleRate > 0 {
			rate = mc.Audio.SampleRate
		}
	}
	p.rates[model] = rate
	return rate
}

// ─── Synthesize ───

// Synthesize runs piper on text and returns its raw output as a mono
// buffer.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Buffer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Buffer{}, tts.ErrEmptyText
	}
	model := p.ModelPath(cmp.Or(voice.ID, p.defaultVoice))
	rate := p.sampleRate(model)

	args := []string{
		"--model", model,
		"--output_raw",
		"--length_scale", strconv.FormatFloat(LengthScale(voice), 'f', 3, 64),
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = p.grace
	cmd.Stdin = strings.NewReader(text + "\n")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "unknown error"
		}
		return audio.Buffer{}, fmt.Errorf("piper: %s: %w", msg, runErr)
	}

	pcm := stdout.Bytes()
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return audio.Buffer{}, errors.New("piper: no audio produced")
	}
	buf := audio.Buffer{PCM: pcm, SampleRate: rate, Channels: 1}
	if p.outputRate > 0 && rate != p.outputRate {
		buf.PCM = audio.ResampleMono16(buf.PCM, rate, p.outputRate)
		buf.SampleRate = p.outputRate
	}
	return buf, nil
}

// Package app wires the vocalis subsystems into a running front end.
//
// The App struct owns the full lifecycle: New builds the journal, the
// speech pipeline, the keyboard listener and the session manager from the
// config and the providers main.go created; Run serves the HTTP endpoints,
// watches the config file and runs sessions; Shutdown tears everything down
// in order.
//
// For testing, inject test doubles via functional options (WithJournal,
// WithKeyboard, ...) and mock providers. When an option is not provided,
// New creates the real implementation from the config.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/health"
	"github.com/MrWong99/vocalis/internal/keyboard"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/session"
	"github.com/MrWong99/vocalis/internal/speech"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// shutdownGrace bounds how long the HTTP server may take to drain.
const shutdownGrace = 5 * time.Second

// ProviderNames are the primary provider names per kind, used as metric
// labels.
type ProviderNames struct {
	STT       string
	TTS       string
	Responder string
}

// Providers holds the collaborators built from the config registry. All
// fields except Names are required. Populated by main.go.
type Providers struct {
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	Responder   responder.Responder
	VAD         vad.Engine

	// Open opens the capture device. It is called at every session start
	// and again after read errors.
	Open session.Opener

	// Sink plays synthesized speech. The App closes it on shutdown.
	Sink audio.Sink

	Names ProviderNames
}

func (p *Providers) validate() error {
	var errs []error
	if p.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if p.Synthesizer == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if p.Responder == nil {
		errs = append(errs, errors.New("responder is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if p.Open == nil {
		errs = append(errs, errors.New("audio source opener is required"))
	}
	if p.Sink == nil {
		errs = append(errs, errors.New("audio sink is required"))
	}
	return errors.Join(errs...)
}

// checker is implemented by collaborators that can report readiness
// (failover groups, the journal guard).
type checker interface {
	Check(ctx context.Context) error
}

// App owns all subsystem lifetimes and runs the voice front end.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	journal  *Journal
	metrics  *observe.Metrics
	pipeline *speech.Pipeline
	keys     *keyboard.Listener
	noKeys   bool
	manager  *SessionManager
	checks   []health.Checker

	// Config watching; disabled when configPath is empty.
	configPath string
	fs         afero.Fs
	watchEvery time.Duration
	watcher    atomic.Pointer[config.Watcher]

	sc responder.SessionContext

	// ready is closed once the HTTP listener is bound.
	ready chan struct{}
	addr  string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects an opened journal instead of opening one from config.
// The App takes ownership and closes it on shutdown.
func WithJournal(j *Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithKeyboard injects the ESC listener. Without it the terminal is used.
func WithKeyboard(k *keyboard.Listener) Option {
	return func(a *App) { a.keys = k }
}

// WithoutKeyboard disables ESC cancellation, for example when stdin is not
// a terminal.
func WithoutKeyboard() Option {
	return func(a *App) { a.keys = nil; a.noKeys = true }
}

// WithMetrics injects the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevel gives the App the handler level to adjust on config reloads.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatch reloads the config file at path whenever it changes and
// applies the hot-reloadable parts.
func WithConfigWatch(path string, fs afero.Fs, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.fs = fs
		a.watchEvery = interval
	}
}

// WithSessionContext seeds the first session's responder context, for
// example with Reset set to start a fresh conversation.
func WithSessionContext(sc responder.SessionContext) Option {
	return func(a *App) { a.sc = sc }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: invalid providers: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		ready:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = a.log.With("component", "app")
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Journal ──────────────────────────────────────────────────────
	if a.journal == nil {
		j, err := OpenJournal(ctx, cfg.Journal, a.log)
		if err != nil {
			return nil, fmt.Errorf("app: open journal: %w", err)
		}
		a.journal = j
	}
	a.closers = append(a.closers, func() error {
		a.journal.Close()
		return nil
	})

	// ── 2. Speech pipeline ──────────────────────────────────────────────
	a.initPipeline()

	// ── 3. Keyboard ─────────────────────────────────────────────────────
	if a.keys == nil && !a.noKeys {
		a.keys = keyboard.New(keyboard.WithLogger(a.log))
	}

	// ── 4. Session manager ──────────────────────────────────────────────
	a.manager = NewSessionManager(SessionManagerConfig{
		Providers: providers,
		Speaker:   a.pipeline,
		Settings:  SettingsFrom(cfg),
		Journal:   a.journal.Store,
		Keyboard:  a.keys,
		Metrics:   a.metrics,
		Logger:    a.log,
	})

	// ── 5. Readiness checks ─────────────────────────────────────────────
	a.checks = append(a.checks, a.journal.Checks...)
	for name, c := range map[string]any{
		"stt":       providers.Transcriber,
		"tts":       providers.Synthesizer,
		"responder": providers.Responder,
	} {
		if c, ok := c.(checker); ok {
			a.checks = append(a.checks, health.Checker{Name: name, Check: c.Check})
		}
	}
	slices.SortFunc(a.checks, func(x, y health.Checker) int { return cmp.Compare(x.Name, y.Name) })

	return a, nil
}

func (a *App) initPipeline() {
	sc := a.cfg.Speech
	opts := []speech.PipelineOption{
		speech.WithVoice(a.cfg.Voice()),
		speech.WithMetrics(a.metrics),
		speech.WithLogger(a.log),
	}
	if sc.Workers > 0 {
		opts = append(opts, speech.WithWorkers(sc.Workers))
	}
	if sc.SentenceGap > 0 {
		opts = append(opts, speech.WithSentenceGap(sc.SentenceGap))
	}
	if sc.HardStop {
		opts = append(opts, speech.WithHardStop())
	}
	a.pipeline = speech.NewPipeline(a.providers.Synthesizer, a.providers.Sink, opts...)
	a.closers = append(a.closers, a.providers.Sink.Close)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.manager }

// Pipeline returns the speech pipeline.
func (a *App) Pipeline() *speech.Pipeline { return a.pipeline }

// Ready is closed once the HTTP endpoints are being served (or immediately
// after Run starts when no listen address is configured).
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the bound HTTP address. Valid after Ready is closed.
func (a *App) Addr() string { return a.addr }

// Reload asks the config watcher to re-read the file now. It reports false
// when no watcher is running.
func (a *App) Reload() bool {
	w := a.watcher.Load()
	if w == nil {
		return false
	}
	w.Trigger()
	return true
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP endpoints, starts the keyboard listener and the
// config watcher, and runs sessions in mode until they finish or ctx is
// cancelled. It returns nil on a normal finish.
func (a *App) Run(ctx context.Context, mode session.Mode) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	// ── HTTP: /metrics, /healthz, /readyz ───────────────────────────────
	if err := a.serve(runCtx, g); err != nil {
		return err
	}

	// ── Keyboard ────────────────────────────────────────────────────────
	if a.keys != nil {
		g.Go(func() error {
			if err := a.keys.Run(runCtx); err != nil {
				// Not fatal: stdin may not be a terminal.
				a.log.Warn("keyboard listener unavailable, ESC cancellation disabled", "err", err)
			}
			return nil
		})
	}

	// ── Config watcher ──────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.fs != nil {
			wopts = append(wopts, config.WithFs(a.fs))
		}
		if a.watchEvery > 0 {
			wopts = append(wopts, config.WithInterval(a.watchEvery))
		}
		wopts = append(wopts, config.WithWatchLogger(a.log))
		w, err := config.NewWatcher(a.configPath, a.applyConfig, wopts...)
		if err != nil {
			a.log.Warn("config watcher disabled", "path", a.configPath, "err", err)
		} else {
			a.watcher.Store(w)
			g.Go(func() error { return w.Run(runCtx) })
		}
	}

	// ── Sessions ────────────────────────────────────────────────────────
	g.Go(func() error {
		// The last session ending ends the other loops.
		defer stop()
		return a.manager.Run(runCtx, mode, a.sc)
	})

	a.log.Info("vocalis running", "mode", mode.String())
	return g.Wait()
}

// serve binds the listen address and serves the HTTP endpoints until ctx is
// done. With no listen address it only marks the App ready.
func (a *App) serve(ctx context.Context, g *errgroup.Group) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		close(a.ready)
		return nil
	}

	mux := http.NewServeMux()
	health.New(a.checks...).Register(mux)
	if a.cfg.Observe.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	srv := &http.Server{
		Handler:           observe.Middleware(a.metrics, a.log)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	a.addr = ln.Addr().String()
	close(a.ready)
	a.log.Info("serving http", "addr", a.addr, "metrics", a.cfg.Observe.Metrics)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// applyConfig is the config watcher callback.
func (a *App) applyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.pipeline.SetVoice(next.Voice())
		a.log.Info("voice changed", "voice", next.Speech.Voice.VoiceID)
	}
	if d.WakeChanged || d.VADChanged || d.VocabularyChanged {
		a.manager.Apply(SettingsFrom(next))
		a.log.Info("session settings reloaded",
			"wake", d.WakeChanged,
			"vad", d.VADChanged,
			"vocabulary", d.VocabularyChanged,
		)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// slogLevel maps a config level to a slog level.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		// Silence the speaker first.
		a.pipeline.Cancel()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/keyboard"
	"github.com/MrWong99/vocalis/internal/listen"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/session"
	"github.com/MrWong99/vocalis/internal/transcript"
	"github.com/MrWong99/vocalis/internal/voicecmd"
	"github.com/MrWong99/vocalis/internal/wake"
	"github.com/MrWong99/vocalis/pkg/journal"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// Settings are the parameters every new session is built from. They are
// replaced as a whole by [SessionManager.Apply].
type Settings struct {
	Listen   listen.Config
	Session  session.Config
	Wake     *wake.Matcher
	Commands *voicecmd.Filter
	Cleaner  session.Cleaner

	// Restart starts a fresh wake-mode session after goodbye or cancel.
	Restart bool
}

// SettingsFrom derives session settings from cfg. The mode field of
// Session is overwritten per run.
func SettingsFrom(cfg *config.Config) Settings {
	var cmdOpts []voicecmd.Option
	if len(cfg.Session.GoodbyePhrases) > 0 {
		cmdOpts = append(cmdOpts, voicecmd.WithGoodbyePhrases(cfg.Session.GoodbyePhrases...))
	}
	if len(cfg.Session.CancelPhrases) > 0 {
		cmdOpts = append(cmdOpts, voicecmd.WithCancelPhrases(cfg.Session.CancelPhrases...))
	}

	var cleanOpts []transcript.Option
	switch d := cfg.Transcript.MinDuration; {
	case d < 0:
		cleanOpts = append(cleanOpts, transcript.WithMinDuration(0))
	case d > 0:
		cleanOpts = append(cleanOpts, transcript.WithMinDuration(d))
	}
	if len(cfg.Transcript.Vocabulary) > 0 {
		cleanOpts = append(cleanOpts, transcript.WithVocabulary(cfg.Transcript.Vocabulary...))
	}

	return Settings{
		Listen:   cfg.Listen(),
		Session:  cfg.SessionConfig(cfg.Mode()),
		Wake:     cfg.WakeMatcher(),
		Commands: voicecmd.New(cmdOpts...),
		Cleaner:  transcript.New(cleanOpts...),
		Restart:  cfg.Session.Restart == nil || *cfg.Session.Restart,
	}
}

// SessionInfo holds metadata about the running session.
type SessionInfo struct {
	// RunID identifies one session run in logs.
	RunID string

	Mode session.Mode

	StartedAt time.Time

	// Run counts sessions started by this manager, starting at 1.
	Run int
}

// SessionManager runs sessions one at a time and restarts them according to
// the configured policy. All exported methods are safe for concurrent use.
type SessionManager struct {
	providers *Providers
	speaker   session.Speaker
	journal   journal.Store
	keys      *keyboard.Listener
	metrics   *observe.Metrics
	log       *slog.Logger
	reconnect session.ReconnectorConfig

	mu       sync.Mutex
	settings Settings
	active   *session.Session
	stopRun  context.CancelFunc
	reload   bool
	info     SessionInfo
	runs     int
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Providers *Providers
	Speaker   session.Speaker
	Settings  Settings

	// Optional.
	Journal   journal.Store
	Keyboard  *keyboard.Listener
	Metrics   *observe.Metrics
	Logger    *slog.Logger
	Reconnect session.ReconnectorConfig
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		providers: cfg.Providers,
		speaker:   cfg.Speaker,
		journal:   cfg.Journal,
		keys:      cfg.Keyboard,
		metrics:   cfg.Metrics,
		log:       log.With("component", "session_manager"),
		reconnect: cfg.Reconnect,
		settings:  cfg.Settings,
	}
}

// Run starts sessions in mode until one ends without a restart, ctx is done
// or the capture device fails for good. sc seeds the first session; later
// sessions continue the conversation the previous one ended with.
func (sm *SessionManager) Run(ctx context.Context, mode session.Mode, sc responder.SessionContext) error {
	for {
		res, err := sm.runOnce(ctx, mode, sc)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if sm.takeReload() {
				continue
			}
			return err
		}
		sc = res.SessionContext
		if !sm.restart(mode, res) {
			sm.log.Info("session finished", "reason", res.Reason.String(), "turns", res.Turns)
			return nil
		}
		sm.log.Info("restarting session", "reason", res.Reason.String())
	}
}

// takeReload reports and clears a pending settings reload.
func (sm *SessionManager) takeReload() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	r := sm.reload
	sm.reload = false
	return r
}

func (sm *SessionManager) restart(mode session.Mode, res session.Result) bool {
	if sm.takeReload() {
		return true
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if mode != session.ModeWake || !sm.settings.Restart {
		return false
	}
	return res.Reason == session.ReasonGoodbye || res.Reason == session.ReasonCancelled
}

func (sm *SessionManager) runOnce(ctx context.Context, mode session.Mode, sc responder.SessionContext) (session.Result, error) {
	set := sm.Settings()
	p := sm.providers

	model, err := p.VAD.NewModel(vad.Config{SampleRate: set.Listen.SampleRate, FrameSize: set.Listen.FrameSize})
	if err != nil {
		return session.Result{}, fmt.Errorf("app: create vad model: %w", err)
	}
	defer func() {
		if err := model.Close(); err != nil {
			sm.log.Warn("vad model close failed", "err", err)
		}
	}()

	detOpts := []listen.Option{listen.WithModel(model), listen.WithLogger(sm.log)}
	if sm.metrics != nil {
		detOpts = append(detOpts, listen.WithMetrics(sm.metrics))
	}
	det, err := listen.NewDetector(set.Listen, detOpts...)
	if err != nil {
		return session.Result{}, fmt.Errorf("app: %w", err)
	}

	runID := uuid.NewString()
	log := sm.log.With("run_id", runID)

	rc := sm.reconnect
	rc.Open = p.Open
	rc.Logger = log

	cfg := set.Session
	cfg.Mode = mode
	cfg.SessionContext = sc

	opts := []session.Option{
		session.WithLogger(log),
		session.WithReconnector(session.NewReconnector(rc)),
		session.WithErrorHandler(sm.onError(ctx)),
	}
	if sm.metrics != nil {
		opts = append(opts, session.WithMetrics(sm.metrics))
	}
	s, err := session.New(cfg, session.Deps{
		Detector:    det,
		Transcriber: p.Transcriber,
		Responder:   p.Responder,
		Speaker:     sm.speaker,
		Wake:        set.Wake,
		Commands:    set.Commands,
		Cleaner:     set.Cleaner,
		Journal:     sm.journal,
	}, opts...)
	if err != nil {
		return session.Result{}, fmt.Errorf("app: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if sm.keys != nil {
		unbind := sm.keys.Bind(s.Cancel)
		defer unbind()
	}

	sm.mu.Lock()
	sm.runs++
	sm.active = s
	sm.stopRun = cancel
	sm.info = SessionInfo{RunID: runID, Mode: mode, StartedAt: time.Now().UTC(), Run: sm.runs}
	sm.mu.Unlock()

	res, err := s.Run(runCtx)

	sm.mu.Lock()
	sm.active = nil
	sm.stopRun = nil
	sm.info = SessionInfo{}
	sm.mu.Unlock()

	return res, err
}

// onError counts collaborator failures per provider kind.
func (sm *SessionManager) onError(ctx context.Context) func(error) {
	return func(err error) {
		if sm.metrics == nil {
			return
		}
		var (
			te *session.TranscriptionError
			re *session.ResponderError
		)
		switch {
		case errors.As(err, &te):
			sm.metrics.RecordProviderError(ctx, sm.providers.Names.STT, "stt")
		case errors.As(err, &re):
			sm.metrics.RecordProviderError(ctx, sm.providers.Names.Responder, "responder")
		}
	}
}

// Apply replaces the settings used for the next session. A wake-mode
// session waiting for its wake phrase is restarted at once so the new
// matcher and detector take effect; any other session keeps running with
// the settings it started with.
func (sm *SessionManager) Apply(set Settings) {
	sm.mu.Lock()
	sm.settings = set
	var stop context.CancelFunc
	if sm.active != nil && sm.active.Machine().State() == session.StateIdle {
		sm.reload = true
		stop = sm.stopRun
	}
	sm.mu.Unlock()

	if stop != nil {
		sm.log.Info("restarting idle session with new settings")
		stop()
	}
}

// Settings returns the settings the next session will use.
func (sm *SessionManager) Settings() Settings {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.settings
}

// Cancel cancels the running session as if the user pressed ESC. It
// reports whether a session was running.
func (sm *SessionManager) Cancel() bool {
	sm.mu.Lock()
	s := sm.active
	sm.mu.Unlock()
	if s == nil {
		return false
	}
	s.Cancel()
	return true
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active != nil
}

// Info returns metadata about the running session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// State returns the running session's machine state, or
// [session.StateIdle] when none is running.
func (sm *SessionManager) State() session.State {
	sm.mu.Lock()
	s := sm.active
	sm.mu.Unlock()
	if s == nil {
		return session.StateIdle
	}
	return s.Machine().State()
}

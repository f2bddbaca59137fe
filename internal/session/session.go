// Package session runs one voice interaction: it captures audio, detects
// utterances, transcribes them, asks the responder and speaks the reply,
// while a [Machine] decides which of those steps is allowed next.
//
// Two loops run per session:
//
//	capture: Source --> Detector --> utterances (bounded, drop when full)
//	control: utterances --> Machine --> Transcriber --> Responder --> Speaker
//
// The capture loop never blocks on the network or on playback. While a turn
// is being answered or spoken, the control loop keeps draining utterances and
// only checks them for a cancel command, so "stop" spoken over the reply
// still cancels the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalis/internal/listen"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/speech"
	"github.com/MrWong99/vocalis/internal/voicecmd"
	"github.com/MrWong99/vocalis/internal/wake"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/journal"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// Defaults for [Config].
const (
	DefaultInactivityTimeout = 2 * time.Minute
	DefaultUtteranceQueue    = 4
	DefaultAskPrompt         = "What would you like to know?"
	DefaultNotUnderstood     = "I didn't catch that."
	DefaultFailureNotice     = "Sorry, something went wrong."
	DefaultTimeoutNotice     = "Ending the conversation due to inactivity."
	DefaultConversationStart = "Conversation mode. Say goodbye to return to wake mode."
	DefaultConversationEnd   = "Returning to wake mode."
)

// DefaultAcknowledgements are spoken after a bare wake phrase.
var DefaultAcknowledgements = []string{"Yes?", "How can I help?", "I'm listening.", "What's up?"}

// DefaultFarewells are spoken when the user says goodbye.
var DefaultFarewells = []string{"Goodbye!", "See you later.", "Talk to you soon.", "Bye for now."}

// errNothingHeard marks an utterance that produced no usable text.
var errNothingHeard = errors.New("session: nothing heard")

// Speaker plays reply text. *speech.Pipeline implements it.
type Speaker interface {
	SpeakText(ctx context.Context, text string) (speech.Outcome, error)
	Cancel()
}

// StreamSpeaker is a [Speaker] that starts on a reply before it is complete.
// *speech.Pipeline implements it. When both the speaker and the responder
// stream, the first sentence plays while the rest is still being written.
type StreamSpeaker interface {
	Speaker
	SpeakDeltas(ctx context.Context, deltas <-chan string) (speech.Outcome, error)
}

// deltaBuffer bounds the reply text queued ahead of the speaker.
const deltaBuffer = 256

// Cleaner post-processes a transcript. It returns ok=false when the
// utterance should be treated as noise.
type Cleaner interface {
	Clean(u *audio.Utterance, text string) (clean string, ok bool)
}

// Config holds the per-session settings. Zero values take the defaults.
type Config struct {
	Mode Mode

	// InactivityTimeout ends a chat or ask session, or returns a wake
	// session to Idle, when no speech arrives while listening.
	InactivityTimeout time.Duration

	// UtteranceQueue bounds utterances waiting for the control loop.
	UtteranceQueue int

	Acknowledgements []string
	Farewells        []string

	AskPrompt         string
	NotUnderstood     string
	FailureNotice     string
	TimeoutNotice     string
	ConversationStart string
	ConversationEnd   string

	// SessionContext is passed with the first prompt, e.g. with Reset set to
	// start the responder conversation from scratch.
	SessionContext responder.SessionContext
}

func (c *Config) applyDefaults() {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.UtteranceQueue <= 0 {
		c.UtteranceQueue = DefaultUtteranceQueue
	}
	if c.Acknowledgements == nil {
		c.Acknowledgements = DefaultAcknowledgements
	}
	if c.Farewells == nil {
		c.Farewells = DefaultFarewells
	}
	if c.AskPrompt == "" {
		c.AskPrompt = DefaultAskPrompt
	}
	if c.NotUnderstood == "" {
		c.NotUnderstood = DefaultNotUnderstood
	}
	if c.FailureNotice == "" {
		c.FailureNotice = DefaultFailureNotice
	}
	if c.TimeoutNotice == "" {
		c.TimeoutNotice = DefaultTimeoutNotice
	}
	if c.ConversationStart == "" {
		c.ConversationStart = DefaultConversationStart
	}
	if c.ConversationEnd == "" {
		c.ConversationEnd = DefaultConversationEnd
	}
}

// Deps are the collaborators a session drives.
type Deps struct {
	// Source is the capture device. Ignored when a [Reconnector] is given
	// via [WithReconnector].
	Source audio.Source

	// Detector is owned by the capture loop for the session's lifetime.
	Detector *listen.Detector

	Transcriber stt.Transcriber
	Responder   responder.Responder
	Speaker     Speaker

	// Wake is required in wake mode.
	Wake *wake.Matcher

	// Commands defaults to voicecmd.New().
	Commands *voicecmd.Filter

	// Cleaner and Journal are optional.
	Cleaner Cleaner
	Journal journal.Store
}

// Result summarises a finished session.
type Result struct {
	Mode   Mode
	State  State
	Reason Reason
	// Turns counts replies that were spoken.
	Turns int
	// Failures counts transcriber and responder errors.
	Failures int
	// SessionContext is the responder context after the last reply.
	SessionContext responder.SessionContext
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics records latencies, transitions and the active-session gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithReconnector reopens the capture device after read errors.
func WithReconnector(r *Reconnector) Option {
	return func(s *Session) { s.reconnect = r }
}

// WithErrorHandler is called with every recoverable collaborator error
// ([TranscriptionError], [ResponderError]).
func WithErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithTransitionHook is registered on the session's machines, including
// the nested conversation-mode machine.
func WithTransitionHook(fn func(Transition)) Option {
	return func(s *Session) { s.hooks = append(s.hooks, fn) }
}

// Session is one running interaction. Create it with [New], run it once
// with [Session.Run] and stop it early with [Session.Cancel].
type Session struct {
	cfg       Config
	deps      Deps
	log       *slog.Logger
	metrics   *observe.Metrics
	reconnect *Reconnector
	onError   func(error)
	hooks     []func(Transition)

	machine *Machine
	started atomic.Bool

	mu            sync.Mutex
	cancel        context.CancelFunc
	userCancelled bool
	cancelOnce    sync.Once

	sc responder.SessionContext // guarded by mu

	// Owned by the control loop.
	utterances <-chan *audio.Utterance
	turns      int
	failures   int
}

// New validates deps and returns a session ready to run.
func New(cfg Config, deps Deps, opts ...Option) (*Session, error) {
	cfg.applyDefaults()

	var errs []error
	if deps.Detector == nil {
		errs = append(errs, errors.New("detector is required"))
	}
	if deps.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if deps.Responder == nil {
		errs = append(errs, errors.New("responder is required"))
	}
	if deps.Speaker == nil {
		errs = append(errs, errors.New("speaker is required"))
	}
	if cfg.Mode == ModeWake && deps.Wake == nil {
		errs = append(errs, errors.New("wake matcher is required in wake mode"))
	}
	if deps.Commands == nil {
		deps.Commands = voicecmd.New()
	}

	s := &Session{
		cfg:  cfg,
		deps: deps,
		log:  slog.Default(),
		sc:   cfg.SessionContext,
	}
	for _, o := range opts {
		o(s)
	}
	if deps.Source == nil && s.reconnect == nil {
		errs = append(errs, errors.New("audio source is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("session: invalid dependencies: %w", err)
	}

	s.log = s.log.With("component", "session", "mode", cfg.Mode.String())
	s.machine = s.newMachine(cfg.Mode)
	return s, nil
}

func (s *Session) newMachine(mode Mode) *Machine {
	var opts []MachineOption
	if s.metrics != nil {
		opts = append(opts, WithTransitionMetrics(s.metrics))
	}
	m := NewMachine(mode, opts...)
	m.OnTransition(func(t Transition) {
		s.log.Debug("state transition",
			"machine", t.Mode.String(),
			"from", t.From.String(),
			"to", t.To.String(),
			"event", t.Event.String(),
			"reason", t.Reason.String(),
		)
	})
	for _, h := range s.hooks {
		m.OnTransition(h)
	}
	return m
}

// Machine returns the session's top-level state machine for read-only use
// (State, Snapshot, OnTransition).
func (s *Session) Machine() *Machine { return s.machine }

// Cancel stops the session as a user cancellation: it ends in
// [StateCancelled]. Capture, synthesis and playback all observe it through
// the session context. Safe to call more than once and before Run.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.userCancelled = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.deps.Speaker.Cancel()
	})
}

func (s *Session) cancelledByUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCancelled
}

// Run drives the session until it reaches a terminal state. A cancelled
// ctx ends the session with [ReasonShutdown]. The returned error is non-nil
// only when the capture device failed for good; goodbye, cancellation and
// inactivity are reported through [Result].
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, errors.New("session: already run")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	if s.userCancelled {
		cancel()
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}

	src := s.deps.Source
	if s.reconnect != nil {
		var err error
		if src, err = s.reconnect.Connect(runCtx); err != nil {
			return s.result(), err
		}
		defer func() { _ = s.reconnect.Stop() }()
	}

	utterances := make(chan *audio.Utterance, s.cfg.UtteranceQueue)
	s.utterances = utterances

	s.log.Info("session started")
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.capture(gctx, src, utterances)
	})
	g.Go(func() error {
		// Ending the control loop ends capture.
		defer cancel()
		s.loop(gctx, s.machine, false)
		return nil
	})
	err := g.Wait()

	// Capture may have failed first; make sure the machine is terminal.
	if !s.machine.State().Terminal() {
		_, _ = s.machine.Fire(EvShutdown)
	}

	res := s.result()
	s.log.Info("session ended",
		"state", res.State.String(),
		"reason", res.Reason.String(),
		"turns", res.Turns,
	)
	return res, err
}

func (s *Session) result() Result {
	snap := s.machine.Snapshot()
	return Result{
		Mode:           snap.Mode,
		State:          snap.State,
		Reason:         snap.Reason,
		Turns:          s.turns,
		Failures:       s.failures,
		SessionContext: s.sessionContext(),
	}
}

func (s *Session) sessionContext() responder.SessionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sc
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// capture reads frames and publishes sealed utterances. It closes out when
// it returns. io.EOF ends capture normally; other read errors go through
// the reconnector if one is configured.
func (s *Session) capture(ctx context.Context, src audio.Source, out chan<- *audio.Utterance) error {
	defer close(out)
	det := s.deps.Detector
	det.Reset()

	for {
		frame, err := src.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				s.log.Info("audio source exhausted")
				return nil
			case s.reconnect != nil:
				s.log.Warn("audio source read failed, reopening", "err", err)
				if src, err = s.reconnect.Reopen(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				det.Reset()
				continue
			default:
				return fmt.Errorf("session: read frame: %w", err)
			}
		}

		ev, err := det.Process(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A bad frame or a model hiccup costs one frame, not the session.
			s.log.Warn("frame rejected", "err", err)
			continue
		}
		if ev.Kind != listen.EventUtteranceEnded {
			continue
		}

		select {
		case out <- ev.Utterance:
		default:
			s.log.Warn("utterance queue full, dropping utterance",
				"frames", ev.Utterance.Len(),
				"duration", ev.Utterance.Duration(),
			)
		}
	}
}

// ─── Control ──────────────────────────────────────────────────────────────────

// loop runs m until it is terminal. nested marks the conversation-mode
// machine running inside a wake session.
func (s *Session) loop(ctx context.Context, m *Machine, nested bool) {
	switch m.Mode() {
	case ModeChat:
		s.fire(m, EvStart)
	case ModeAsk:
		s.fire(m, EvStart)
		s.say(ctx, s.cfg.AskPrompt)
	}

	timer := time.NewTimer(s.cfg.InactivityTimeout)
	defer timer.Stop()

	for !m.State().Terminal() {
		if ctx.Err() != nil {
			s.stop(m)
			return
		}

		select {
		case <-ctx.Done():
			s.stop(m)

		case <-timer.C:
			if m.State() == StateListening {
				s.inactive(ctx, m, nested)
			}
			timer.Reset(s.cfg.InactivityTimeout)

		case u, ok := <-s.utterances:
			if !ok {
				if ctx.Err() != nil {
					s.stop(m)
				} else {
					s.fire(m, EvShutdown)
				}
				continue
			}
			switch m.State() {
			case StateIdle:
				if s.awaitWake(ctx, m, u) {
					timer.Reset(s.cfg.InactivityTimeout)
				}
			case StateListening:
				s.fire(m, EvUtterance)
				if s.turn(ctx, m, u, "", nested) {
					timer.Reset(s.cfg.InactivityTimeout)
				}
			}
		}
	}
}

// stop fires the event matching why ctx ended.
func (s *Session) stop(m *Machine) {
	if s.cancelledByUser() {
		s.fire(m, EvCancel)
		return
	}
	s.fire(m, EvShutdown)
}

func (s *Session) inactive(ctx context.Context, m *Machine, nested bool) {
	s.log.Info("inactivity timeout", "timeout", s.cfg.InactivityTimeout)
	if m.Mode() != ModeWake && !nested {
		s.say(ctx, s.cfg.TimeoutNotice)
	}
	s.fire(m, EvInactivity)
}

// awaitWake checks an idle-state utterance for the wake phrase. It reports
// whether the phrase was heard.
func (s *Session) awaitWake(ctx context.Context, m *Machine, u *audio.Utterance) bool {
	text, err := s.transcribe(ctx, u, "")
	if err != nil {
		if !errors.Is(err, errNothingHeard) && ctx.Err() == nil {
			s.log.Debug("wake transcription failed", "err", err)
		}
		return false
	}
	rest, ok := s.deps.Wake.Strip(text)
	if !ok {
		s.log.Debug("no wake phrase", "text", text)
		return false
	}
	s.log.Info("wake phrase detected", "text", text)
	s.fire(m, EvWake)

	// "hey claude what time is it" carries its own prompt.
	if rest != "" {
		s.fire(m, EvUtterance)
		s.turn(ctx, m, nil, rest, false)
		return true
	}
	s.say(ctx, pick(s.cfg.Acknowledgements))
	return true
}

// turn handles one utterance in Processing. When text is non-empty the
// transcription step is skipped. Every path leaves m out of Processing
// unless ctx was cancelled, in which case the loop fires the stop event.
// It reports whether the utterance carried words; noise and failed
// transcriptions do not count as user activity.
func (s *Session) turn(ctx context.Context, m *Machine, u *audio.Utterance, text string, nested bool) bool {
	turnID := uuid.NewString()
	ctx, span := observe.StartTurn(ctx, s.sessionContext().ID, turnID, m.Mode().String())
	defer span.End()
	log := observe.TraceLogger(ctx, s.log).With("turn_id", turnID)

	if text == "" {
		var err error
		text, err = s.transcribe(ctx, u, turnID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if errors.Is(err, errNothingHeard) {
				log.Debug("discarding utterance without speech")
				if m.Mode() == ModeAsk {
					s.say(ctx, s.cfg.NotUnderstood)
				}
				s.fire(m, EvDegenerate)
				return false
			}
			s.report(err)
			if m.Mode() == ModeAsk {
				s.say(ctx, s.cfg.NotUnderstood)
			}
			s.fire(m, EvFailure)
			return false
		}
	}
	log.Info("user said", "text", text)

	switch s.deps.Commands.Classify(text) {
	case voicecmd.Cancel:
		log.Info("cancel command")
		s.Cancel()
		s.fire(m, EvCancel)
		return true
	case voicecmd.Goodbye:
		if !nested {
			s.say(ctx, pick(s.cfg.Farewells))
		}
		s.fire(m, EvGoodbye)
		return true
	case voicecmd.ConversationMode:
		if m.Mode() == ModeWake {
			s.conversation(ctx, m)
			return true
		}
	}

	// From here on the only thing the user can do is cancel.
	turnCtx, cancelTurn := context.WithCancel(ctx)
	watched := s.watch(turnCtx)
	defer func() {
		cancelTurn()
		<-watched
	}()

	var (
		reply  responder.Reply
		spoken <-chan spokenReply
		err    error
	)
	r, canStream := s.deps.Responder.(responder.Streamer)
	sp, canSpeak := s.deps.Speaker.(StreamSpeaker)
	if canStream && canSpeak {
		reply, spoken, err = s.respondStreaming(turnCtx, m, r, sp, text, turnID)
	} else {
		reply, err = s.respond(turnCtx, text, turnID)
	}
	if err != nil {
		if spoken != nil {
			// Part of the reply is already playing; let it finish.
			<-spoken
			if ctx.Err() != nil {
				return true
			}
			s.report(err)
			s.say(ctx, s.cfg.FailureNotice)
			s.fire(m, EvPlaybackDone)
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		s.report(err)
		s.say(ctx, s.cfg.FailureNotice)
		s.fire(m, EvFailure)
		return true
	}
	log.Info("reply", "text", reply.Text)
	s.record(ctx, turnID, m.Mode(), text, reply)

	var out speech.Outcome
	if spoken != nil {
		res := <-spoken
		out, err = res.out, res.err
	} else {
		s.fire(m, EvResponse)
		out, err = s.speakReply(turnCtx, reply.Text, turnID)
	}
	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		log.Warn("speaking reply failed", "err", err)
	}
	log.Debug("reply spoken", "played", out.Played, "skipped", out.Skipped)
	s.turns++
	s.fire(m, EvPlaybackDone)
	return true
}

// conversation runs a nested chat machine on the same capture stream, then
// returns the wake machine to Idle.
func (s *Session) conversation(ctx context.Context, m *Machine) {
	s.log.Info("entering conversation mode")
	s.say(ctx, s.cfg.ConversationStart)

	child := s.newMachine(ModeChat)
	s.loop(ctx, child, true)
	if ctx.Err() != nil {
		return
	}

	snap := child.Snapshot()
	s.log.Info("conversation mode ended", "state", snap.State.String(), "reason", snap.Reason.String())
	if snap.Reason == ReasonShutdown {
		s.fire(m, EvShutdown)
		return
	}
	s.fire(m, EvResponse)
	s.say(ctx, s.cfg.ConversationEnd)
	s.fire(m, EvPlaybackDone)
}

// watch drains utterances while a turn is answered or spoken and cancels
// the session when one of them is a cancel command. The returned channel is
// closed once the watcher has stopped reading.
func (s *Session) watch(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-s.utterances:
				if !ok {
					return
				}
				text, err := s.transcribe(ctx, u, "")
				if err != nil {
					continue
				}
				if s.deps.Commands.IsCancel(text) {
					s.log.Info("cancel command during reply", "text", text)
					s.Cancel()
					return
				}
				s.log.Debug("ignoring speech while busy", "text", text)
			}
		}
	}()
	return done
}

// ─── Collaborators ────────────────────────────────────────────────────────────

// transcribe returns cleaned text, errNothingHeard for noise, or a
// *TranscriptionError.
func (s *Session) transcribe(ctx context.Context, u *audio.Utterance, turnID string) (string, error) {
	ctx, span := observe.StartStage(ctx, "transcribe", s.sessionContext().ID, turnID)
	start := time.Now()
	text, err := s.deps.Transcriber.Transcribe(ctx, u)
	if s.metrics != nil {
		s.metrics.STTDuration.Record(ctx, observe.Since(start))
	}
	observe.EndSpan(span, err)

	switch {
	case errors.Is(err, stt.ErrEmptyTranscript):
		return "", errNothingHeard
	case err != nil:
		return "", &TranscriptionError{Err: err}
	}
	if s.deps.Cleaner != nil {
		var ok bool
		if text, ok = s.deps.Cleaner.Clean(u, text); !ok {
			return "", errNothingHeard
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNothingHeard
	}
	return text, nil
}

func (s *Session) respond(ctx context.Context, text, turnID string) (responder.Reply, error) {
	sc := s.sessionContext()
	ctx, span := observe.StartStage(ctx, "respond", sc.ID, turnID)
	start := time.Now()
	reply, err := s.deps.Responder.Respond(ctx, text, sc)
	if s.metrics != nil {
		s.metrics.ResponderDuration.Record(ctx, observe.Since(start))
	}
	observe.EndSpan(span, err)
	if err != nil {
		return reply, &ResponderError{Err: err}
	}
	s.mu.Lock()
	s.sc = reply.Context
	s.sc.Reset = false
	s.mu.Unlock()
	return reply, nil
}

type spokenReply struct {
	out speech.Outcome
	err error
}

// respondStreaming answers text and starts speaking at the first delta,
// firing EvResponse then. spoken is nil when nothing was emitted; otherwise
// it delivers the playback result once the reply has been spoken.
func (s *Session) respondStreaming(ctx context.Context, m *Machine, r responder.Streamer, sp StreamSpeaker, text, turnID string) (reply responder.Reply, spoken <-chan spokenReply, err error) {
	sc := s.sessionContext()
	rctx, span := observe.StartStage(ctx, "respond", sc.ID, turnID)
	start := time.Now()

	var deltas chan string
	reply, err = r.RespondStream(rctx, text, sc, func(d string) {
		if deltas == nil {
			deltas = make(chan string, deltaBuffer)
			done := make(chan spokenReply, 1)
			spoken = done
			s.fire(m, EvResponse)
			go func() {
				sctx, sspan := observe.StartStage(ctx, "speak", sc.ID, turnID)
				out, err := sp.SpeakDeltas(sctx, deltas)
				observe.EndSpan(sspan, err)
				done <- spokenReply{out: out, err: err}
			}()
		}
		select {
		case deltas <- d:
		case <-ctx.Done():
		}
	})
	if deltas != nil {
		close(deltas)
	}
	if s.metrics != nil {
		s.metrics.ResponderDuration.Record(ctx, observe.Since(start))
	}
	observe.EndSpan(span, err)
	if err != nil {
		return reply, spoken, &ResponderError{Err: err}
	}
	s.mu.Lock()
	s.sc = reply.Context
	s.sc.Reset = false
	s.mu.Unlock()
	return reply, spoken, nil
}

func (s *Session) speakReply(ctx context.Context, text, turnID string) (speech.Outcome, error) {
	ctx, span := observe.StartStage(ctx, "speak", s.sessionContext().ID, turnID)
	out, err := s.deps.Speaker.SpeakText(ctx, text)
	observe.EndSpan(span, err)
	return out, err
}

// say speaks a short notice (acknowledgement, farewell, prompt). Failures
// are logged only.
func (s *Session) say(ctx context.Context, text string) {
	if text == "" || ctx.Err() != nil {
		return
	}
	if _, err := s.deps.Speaker.SpeakText(ctx, text); err != nil && ctx.Err() == nil {
		s.log.Warn("speaking notice failed", "text", text, "err", err)
	}
}

// record journals a completed exchange.
func (s *Session) record(ctx context.Context, turnID string, mode Mode, prompt string, reply responder.Reply) {
	if s.deps.Journal == nil {
		return
	}
	now := time.Now()
	err := s.deps.Journal.Append(ctx,
		journal.Entry{SessionID: reply.Context.ID, TurnID: turnID, Role: journal.RoleUser, Text: prompt, Mode: mode.String(), Timestamp: now},
		journal.Entry{SessionID: reply.Context.ID, TurnID: turnID, Role: journal.RoleAssistant, Text: reply.Text, Mode: mode.String(), Timestamp: now},
	)
	if err != nil {
		s.log.Warn("journal append failed", "turn_id", turnID, "err", err)
	}
}

func (s *Session) report(err error) {
	s.failures++
	s.log.Error("turn failed", "err", err)
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Session) fire(m *Machine, ev Event) {
	if _, err := m.Fire(ev); err != nil {
		s.log.Debug("event ignored", "event", ev.String(), "state", m.State().String())
	}
}

func pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[rand.IntN(len(options))]
}

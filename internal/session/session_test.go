package session_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/internal/listen"
	"github.com/MrWong99/vocalis/internal/session"
	"github.com/MrWong99/vocalis/internal/speech"
	"github.com/MrWong99/vocalis/internal/wake"
	"github.com/MrWong99/vocalis/pkg/audio"
	audiomock "github.com/MrWong99/vocalis/pkg/audio/mock"
	"github.com/MrWong99/vocalis/pkg/journal"
	journalmock "github.com/MrWong99/vocalis/pkg/journal/mock"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
	respmock "github.com/MrWong99/vocalis/pkg/provider/responder/mock"
	sttmock "github.com/MrWong99/vocalis/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/vocalis/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/vocalis/pkg/provider/vad/mock"
)

const frameSize = 160 // 10 ms at 16 kHz

// ─── Helpers ──────────────────────────────────────────────────────────────────

func frame(speech bool) audio.Frame {
	f := audio.Frame{Samples: make([]int16, frameSize), SampleRate: 16000}
	if speech {
		f.Samples[0] = 1000
	}
	return f
}

// utterance returns frames the test detector turns into exactly one
// utterance: two frames of lead-in, five of speech, three of silence.
func utterance() []audio.Frame {
	var out []audio.Frame
	for range 2 {
		out = append(out, frame(false))
	}
	for range 5 {
		out = append(out, frame(true))
	}
	for range 3 {
		out = append(out, frame(false))
	}
	return out
}

func newDetector(t *testing.T) *listen.Detector {
	t.Helper()
	cfg := listen.Config{
		SampleRate:        16000,
		FrameSize:         frameSize,
		StartThreshold:    0.85,
		ContinueThreshold: 0.5,
		SilenceDuration:   30 * time.Millisecond,
		PreBufferSize:     2,
		MinSpeechFrames:   1,
	}
	model := &vadmock.Model{Func: func(f audio.Frame) float64 {
		if f.Samples[0] != 0 {
			return 1
		}
		return 0
	}}
	d, err := listen.NewDetector(cfg, listen.WithModel(model))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

// fakeSpeaker records spoken texts. When Block is set, SpeakText waits for
// ctx to end.
type fakeSpeaker struct {
	mu      sync.Mutex
	texts   []string
	cancels int
	Block   bool
}

func (f *fakeSpeaker) SpeakText(ctx context.Context, text string) (speech.Outcome, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	block := f.Block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return speech.Outcome{Cancelled: true}, ctx.Err()
	}
	return speech.Outcome{Played: 1}, nil
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.texts)
}

// scriptedSTT answers each call with the next result.
type scriptedSTT struct {
	mu      sync.Mutex
	results []sttResult
}

type sttResult struct {
	text string
	err  error
}

func (s *scriptedSTT) Transcribe(_ context.Context, _ *audio.Utterance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.text, r.err
}

type harness struct {
	src     *audiomock.Source
	speaker *fakeSpeaker
	resp    *respmock.Responder
	journal *journalmock.Store
	deps    session.Deps
}

func newHarness(t *testing.T, texts ...string) *harness {
	t.Helper()
	h := &harness{
		src:     &audiomock.Source{Hold: true},
		speaker: &fakeSpeaker{},
		resp:    &respmock.Responder{},
		journal: &journalmock.Store{},
	}
	h.deps = session.Deps{
		Source:      h.src,
		Detector:    newDetector(t),
		Transcriber: sttmock.NewTranscriber(texts...),
		Responder:   h.resp,
		Speaker:     h.speaker,
		Journal:     h.journal,
	}
	return h
}

// say queues one utterance on the source.
func (h *harness) say() { h.src.Push(utterance()...) }

func run(t *testing.T, ctx context.Context, cfg session.Config, deps session.Deps, opts ...session.Option) session.Result {
	t.Helper()
	s, err := session.New(cfg, deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// onTransition returns a hook that calls fn for transitions matching match.
func onTransition(match func(session.Transition) bool, fn func()) session.Option {
	return session.WithTransitionHook(func(tr session.Transition) {
		if match(tr) {
			fn()
		}
	})
}

func backToListening(tr session.Transition) bool {
	return tr.To == session.StateListening && tr.From != session.StateIdle
}

func wantStrings(t *testing.T, name string, got, want []string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}

// ─── Chat ─────────────────────────────────────────────────────────────────────

func TestSession_ChatTurnThenGoodbye(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "what time is it", "goodbye")
	h.resp.Replies = []string{"It is noon."}
	h.say()

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
	)

	if res.State != session.StateTerminated || res.Reason != session.ReasonGoodbye {
		t.Errorf("result = %s/%s, want terminated/goodbye", res.State, res.Reason)
	}
	if res.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.Turns)
	}
	if res.SessionContext.ID != "mock-session" {
		t.Errorf("SessionContext = %+v", res.SessionContext)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"It is noon.", "Bye."})

	calls := h.resp.CallsSnapshot()
	if len(calls) != 1 || calls[0].Text != "what time is it" {
		t.Errorf("responder calls = %+v", calls)
	}

	entries, _ := h.journal.Recent(context.Background(), "mock-session", 0)
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}
	if entries[0].Role != journal.RoleUser || entries[1].Role != journal.RoleAssistant ||
		entries[0].TurnID == "" || entries[0].TurnID != entries[1].TurnID || entries[0].Mode != "chat" {
		t.Errorf("journal = %+v", entries)
	}
}

func TestSession_ChatPassesSessionContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "first", "second", "bye")
	h.resp.Replies = []string{"One.", "Two."}
	h.resp.SessionID = "conv-9"
	h.say()

	run(t, context.Background(),
		session.Config{Mode: session.ModeChat},
		h.deps,
		onTransition(backToListening, h.say),
	)

	calls := h.resp.CallsSnapshot()
	if len(calls) != 2 {
		t.Fatalf("responder calls = %d, want 2", len(calls))
	}
	if calls[0].Context.ID != "" {
		t.Errorf("first context = %+v, want empty", calls[0].Context)
	}
	if calls[1].Context.ID != "conv-9" || calls[1].Context.Reset {
		t.Errorf("second context = %+v, want conv-9", calls[1].Context)
	}
}

func TestSession_ChatInactivityTerminates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	start := time.Now()
	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, InactivityTimeout: 50 * time.Millisecond},
		h.deps,
	)

	if res.State != session.StateTerminated || res.Reason != session.ReasonInactivity {
		t.Errorf("result = %s/%s, want terminated/inactivity", res.State, res.Reason)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("terminated after %v, before the timeout", elapsed)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{session.DefaultTimeoutNotice})
}

func TestSession_ChatRecoversFromTranscriptionFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sttErr := errors.New("whisper unavailable")
	h.deps.Transcriber = &scriptedSTT{results: []sttResult{{err: sttErr}, {text: "bye"}}}
	h.say()

	var reported []error
	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
		session.WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)

	if res.Reason != session.ReasonGoodbye || res.Failures != 1 {
		t.Errorf("result = %+v, want goodbye with one failure", res)
	}
	if len(reported) != 1 {
		t.Fatalf("reported = %v", reported)
	}
	var te *session.TranscriptionError
	if !errors.As(reported[0], &te) || !errors.Is(reported[0], sttErr) {
		t.Errorf("reported %v, want TranscriptionError wrapping cause", reported[0])
	}
	if len(h.resp.CallsSnapshot()) != 0 {
		t.Error("responder called despite failed transcription")
	}
}

func TestSession_ChatDegenerateUtteranceIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "", "bye")
	h.say()

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
	)

	if res.Reason != session.ReasonGoodbye || res.Failures != 0 {
		t.Errorf("result = %+v", res)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"Bye."})
}

func TestSession_NoiseDoesNotDeferInactivity(t *testing.T) {
	t.Parallel()
	h := newHarness(t) // every utterance transcribes to nothing

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		tick := time.NewTicker(60 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				h.say()
			}
		}
	}()

	start := time.Now()
	res := run(t, ctx,
		session.Config{Mode: session.ModeChat, InactivityTimeout: 150 * time.Millisecond},
		h.deps,
	)
	elapsed := time.Since(start)

	if res.State != session.StateTerminated || res.Reason != session.ReasonInactivity {
		t.Errorf("result = %s/%s, want terminated/inactivity", res.State, res.Reason)
	}
	if elapsed < 150*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("terminated after %v, want shortly after 150ms", elapsed)
	}
	if len(h.resp.CallsSnapshot()) != 0 {
		t.Error("noise reached the responder")
	}
}

type rejectAll struct{}

func (rejectAll) Clean(*audio.Utterance, string) (string, bool) { return "", false }

func TestSession_CleanerDropsTranscript(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "uh")
	h.deps.Cleaner = rejectAll{}
	h.say()

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeAsk},
		h.deps,
	)
	if res.Reason != session.ReasonFailure {
		t.Errorf("Reason = %s, want failure", res.Reason)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{session.DefaultAskPrompt, session.DefaultNotUnderstood})
}

func TestSession_ChatResponderFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "hello", "bye")
	h.resp.Err = errors.New("backend down")
	h.say()

	var reported []error
	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
		session.WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)

	if res.Reason != session.ReasonGoodbye || res.Turns != 0 || res.Failures != 1 {
		t.Errorf("result = %+v", res)
	}
	var re *session.ResponderError
	if len(reported) != 1 || !errors.As(reported[0], &re) {
		t.Errorf("reported = %v, want one ResponderError", reported)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{session.DefaultFailureNotice, "Bye."})
}

// streamSpeaker records each streamed reply as one text and hands the first
// delta of a reply to first.
type streamSpeaker struct {
	*fakeSpeaker
	first chan string
}

func (f *streamSpeaker) SpeakDeltas(_ context.Context, deltas <-chan string) (speech.Outcome, error) {
	var b strings.Builder
	for d := range deltas {
		if b.Len() == 0 {
			select {
			case f.first <- d:
			default:
			}
		}
		b.WriteString(d)
	}
	f.mu.Lock()
	f.texts = append(f.texts, b.String())
	f.mu.Unlock()
	return speech.Outcome{Played: 1}, nil
}

// gatedResponder streams head, then waits for gate before streaming tail or
// failing with err.
type gatedResponder struct {
	head, tail string
	gate       <-chan string
	err        error
}

func (g *gatedResponder) Respond(context.Context, string, responder.SessionContext) (responder.Reply, error) {
	return responder.Reply{}, errors.New("only streamed replies expected")
}

func (g *gatedResponder) RespondStream(ctx context.Context, _ string, sc responder.SessionContext, onDelta func(string)) (responder.Reply, error) {
	onDelta(g.head)
	select {
	case <-g.gate:
	case <-ctx.Done():
		return responder.Reply{Context: sc}, ctx.Err()
	}
	if g.err != nil {
		return responder.Reply{Context: sc}, g.err
	}
	onDelta(g.tail)
	return responder.Reply{Text: g.head + g.tail, Context: responder.SessionContext{ID: "streamed"}}, nil
}

func TestSession_StreamedReplyStartsBeforeItEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "what time is it", "goodbye")
	sp := &streamSpeaker{fakeSpeaker: h.speaker, first: make(chan string, 1)}
	h.deps.Speaker = sp
	// The tail is only written once the speaker holds the head.
	h.deps.Responder = &gatedResponder{head: "It is noon. ", tail: "Lunch is ready.", gate: sp.first}
	h.say()

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
	)

	if res.Reason != session.ReasonGoodbye || res.Turns != 1 || res.SessionContext.ID != "streamed" {
		t.Errorf("result = %+v", res)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"It is noon. Lunch is ready.", "Bye."})
	entries, _ := h.journal.Recent(context.Background(), "streamed", 0)
	if len(entries) != 2 || entries[1].Text != "It is noon. Lunch is ready." {
		t.Errorf("journal = %+v", entries)
	}
}

func TestSession_StreamedReplyFailsMidway(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "what time is it", "goodbye")
	sp := &streamSpeaker{fakeSpeaker: h.speaker, first: make(chan string, 1)}
	h.deps.Speaker = sp
	h.deps.Responder = &gatedResponder{head: "It is noon. ", gate: sp.first, err: errors.New("stream reset")}
	h.say()

	var reported []error
	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		onTransition(backToListening, h.say),
		session.WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)

	if res.Reason != session.ReasonGoodbye || res.Turns != 0 || res.Failures != 1 {
		t.Errorf("result = %+v", res)
	}
	var re *session.ResponderError
	if len(reported) != 1 || !errors.As(reported[0], &re) {
		t.Errorf("reported = %v, want one ResponderError", reported)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"It is noon. ", session.DefaultFailureNotice, "Bye."})
	if entries, _ := h.journal.Recent(context.Background(), "streamed", 0); len(entries) != 0 {
		t.Errorf("journal = %+v, want nothing for a broken reply", entries)
	}
}

// ─── Cancellation ─────────────────────────────────────────────────────────────

func TestSession_CancelPhraseDuringPlayback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tell me a story", "stop")
	h.resp.Replies = []string{"Once upon a time."}
	h.speaker.Block = true
	h.say()

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat},
		h.deps,
		onTransition(func(tr session.Transition) bool { return tr.To == session.StateSpeaking }, h.say),
	)

	if res.State != session.StateCancelled || res.Reason != session.ReasonCancelled {
		t.Errorf("result = %s/%s, want cancelled", res.State, res.Reason)
	}
	if res.Turns != 0 {
		t.Errorf("Turns = %d, want 0", res.Turns)
	}
}

func TestSession_CancelPhraseAsPrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "cancel")
	h.say()

	res := run(t, context.Background(), session.Config{Mode: session.ModeChat}, h.deps)
	if res.State != session.StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if len(h.resp.CallsSnapshot()) != 0 {
		t.Error("cancel phrase reached the responder")
	}
}

func TestSession_CancelWhileProcessing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "slow question")
	h.resp.Delay = 5 * time.Second
	h.say()

	var s *session.Session
	s, err := session.New(session.Config{Mode: session.ModeChat}, h.deps,
		onTransition(func(tr session.Transition) bool { return tr.To == session.StateProcessing }, func() {
			s.Cancel()
			s.Cancel()
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != session.StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not interrupt the responder")
	}
}

func TestSession_CancelBeforeRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s, err := session.New(session.Config{Mode: session.ModeChat}, h.deps)
	if err != nil {
		t.Fatal(err)
	}
	s.Cancel()

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.State != session.StateCancelled {
		t.Errorf("State = %s, want cancelled", res.State)
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestSession_ContextCancelShutsDown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res := run(t, ctx, session.Config{Mode: session.ModeChat}, h.deps)
	if res.State != session.StateTerminated || res.Reason != session.ReasonShutdown {
		t.Errorf("result = %s/%s, want terminated/shutdown", res.State, res.Reason)
	}
	if h.src.CallCountRead == 0 {
		t.Error("capture loop never read the source")
	}
}

func TestSession_SourceEOFShutsDownAfterTurn(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "last words")
	h.src.Hold = false
	h.resp.Replies = []string{"Noted."}
	h.say()

	res := run(t, context.Background(), session.Config{Mode: session.ModeChat}, h.deps)
	if res.Reason != session.ReasonShutdown || res.Turns != 1 {
		t.Errorf("result = %+v, want shutdown after one turn", res)
	}
}

func TestSession_SourceErrorIsFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.ReadErr = errors.New("device unplugged")

	s, err := session.New(session.Config{Mode: session.ModeChat}, h.deps)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected capture error")
	}
	if res.State != session.StateTerminated || res.Reason != session.ReasonShutdown {
		t.Errorf("result = %s/%s", res.State, res.Reason)
	}
}

func TestSession_ReconnectorReopensSource(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "hello again", "bye")
	h.resp.Replies = []string{"Welcome back."}

	broken := &audiomock.Source{ReadErr: errors.New("device unplugged")}
	healthy := &audiomock.Source{Hold: true}
	healthy.Push(utterance()...)
	var mu sync.Mutex
	opened := 0
	rec := session.NewReconnector(session.ReconnectorConfig{
		Backoff: time.Millisecond,
		Open: func(context.Context) (audio.Source, error) {
			mu.Lock()
			defer mu.Unlock()
			opened++
			if opened == 1 {
				return broken, nil
			}
			return healthy, nil
		},
	})
	h.deps.Source = nil

	res := run(t, context.Background(),
		session.Config{Mode: session.ModeChat, Farewells: []string{"Bye."}},
		h.deps,
		session.WithReconnector(rec),
		onTransition(backToListening, func() { healthy.Push(utterance()...) }),
	)

	if res.Reason != session.ReasonGoodbye || res.Turns != 1 {
		t.Errorf("result = %+v", res)
	}
	if broken.CallCountClose != 1 {
		t.Errorf("broken source closed %d times, want 1", broken.CallCountClose)
	}
}

// ─── Ask ──────────────────────────────────────────────────────────────────────

func TestSession_AskAnswersOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "how tall is everest")
	h.resp.Replies = []string{"About 8849 metres."}
	h.say()

	res := run(t, context.Background(), session.Config{Mode: session.ModeAsk}, h.deps)

	if res.State != session.StateTerminated || res.Reason != session.ReasonCompleted || res.Turns != 1 {
		t.Errorf("result = %+v, want completed after one turn", res)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{session.DefaultAskPrompt, "About 8849 metres."})
}

func TestSession_AskNothingHeard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	h.say()

	res := run(t, context.Background(), session.Config{Mode: session.ModeAsk}, h.deps)

	if res.State != session.StateTerminated || res.Reason != session.ReasonFailure {
		t.Errorf("result = %s/%s, want terminated/failure", res.State, res.Reason)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{session.DefaultAskPrompt, session.DefaultNotUnderstood})
}

func TestSession_AskInactivity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	res := run(t, context.Background(),
		session.Config{Mode: session.ModeAsk, InactivityTimeout: 30 * time.Millisecond},
		h.deps,
	)
	if res.Reason != session.ReasonInactivity {
		t.Errorf("Reason = %s, want inactivity", res.Reason)
	}
}

// ─── Wake ─────────────────────────────────────────────────────────────────────

func TestSession_WakePhraseWithInlinePrompt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "hey jarvis what time is it")
	h.deps.Wake = wake.New("hey jarvis")
	h.resp.Replies = []string{"Noon."}
	h.say()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := run(t, ctx,
		session.Config{Mode: session.ModeWake},
		h.deps,
		onTransition(func(tr session.Transition) bool {
			return tr.To == session.StateIdle && tr.From == session.StateSpeaking
		}, cancel),
	)

	if res.Turns != 1 || res.Reason != session.ReasonShutdown {
		t.Errorf("result = %+v", res)
	}
	calls := h.resp.CallsSnapshot()
	if len(calls) != 1 || calls[0].Text != "what time is it" {
		t.Errorf("responder calls = %+v", calls)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"Noon."})
}

func TestSession_WakeAcknowledgesThenListens(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "what a lovely day", "hey jarvis", "tell me a joke")
	h.deps.Wake = wake.New("hey jarvis")
	h.resp.Replies = []string{"Knock knock."}
	h.say()
	h.say()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var states []session.State
	res := run(t, ctx,
		session.Config{Mode: session.ModeWake, Acknowledgements: []string{"Yes?"}},
		h.deps,
		session.WithTransitionHook(func(tr session.Transition) { states = append(states, tr.To) }),
		onTransition(func(tr session.Transition) bool { return tr.Event == session.EvWake }, h.say),
		onTransition(func(tr session.Transition) bool {
			return tr.To == session.StateIdle && tr.From == session.StateSpeaking
		}, cancel),
	)

	if res.Turns != 1 {
		t.Errorf("Turns = %d, want 1", res.Turns)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{"Yes?", "Knock knock."})
	want := []session.State{
		session.StateListening, session.StateProcessing, session.StateSpeaking,
		session.StateIdle, session.StateTerminated,
	}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestSession_WakeInactivityReturnsToIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "hey jarvis")
	h.deps.Wake = wake.New("hey jarvis")
	h.say()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var idleReason session.Reason
	res := run(t, ctx,
		session.Config{Mode: session.ModeWake, InactivityTimeout: 30 * time.Millisecond, Acknowledgements: []string{"Yes?"}},
		h.deps,
		session.WithTransitionHook(func(tr session.Transition) {
			if tr.To == session.StateIdle {
				idleReason = tr.Reason
				cancel()
			}
		}),
	)

	if idleReason != session.ReasonInactivity {
		t.Errorf("idle reason = %s, want inactivity", idleReason)
	}
	if res.Reason != session.ReasonShutdown {
		t.Errorf("Reason = %s, want shutdown", res.Reason)
	}
}

func TestSession_WakeConversationMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "hey jarvis conversation mode", "how is the weather", "goodbye")
	h.deps.Wake = wake.New("hey jarvis")
	h.resp.Replies = []string{"Sunny."}
	h.say()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var chatReasons []session.Reason
	res := run(t, ctx,
		session.Config{Mode: session.ModeWake, Farewells: []string{"Bye."}},
		h.deps,
		session.WithTransitionHook(func(tr session.Transition) {
			switch {
			case tr.Mode == session.ModeChat && tr.To == session.StateListening:
				h.say()
			case tr.Mode == session.ModeChat && tr.To.Terminal():
				chatReasons = append(chatReasons, tr.Reason)
			case tr.Mode == session.ModeWake && tr.To == session.StateIdle:
				cancel()
			}
		}),
	)

	if res.Mode != session.ModeWake || res.Turns != 1 {
		t.Errorf("result = %+v", res)
	}
	if !slices.Equal(chatReasons, []session.Reason{session.ReasonGoodbye}) {
		t.Errorf("nested chat ended with %v, want goodbye", chatReasons)
	}
	wantStrings(t, "spoken", h.speaker.spoken(), []string{
		session.DefaultConversationStart, "Sunny.", session.DefaultConversationEnd,
	})
}

// ─── Wiring ───────────────────────────────────────────────────────────────────

func TestNew_ValidatesDeps(t *testing.T) {
	t.Parallel()
	_, err := session.New(session.Config{Mode: session.ModeWake}, session.Deps{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"detector", "transcriber", "responder", "speaker", "wake matcher", "audio source"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestSession_WithSpeechPipeline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "read me something")
	h.resp.Replies = []string{"First sentence. Second sentence. Third one."}
	sink := &audiomock.Sink{}
	h.deps.Speaker = speech.NewPipeline(&ttsmock.Synthesizer{}, sink, speech.WithWorkers(2))
	h.say()

	res := run(t, context.Background(), session.Config{Mode: session.ModeAsk, AskPrompt: "Go ahead."}, h.deps)
	if res.Reason != session.ReasonCompleted {
		t.Fatalf("Reason = %s", res.Reason)
	}
	var got []string
	for _, c := range sink.PlayCalls {
		got = append(got, string(c.Buffer.PCM))
	}
	wantStrings(t, "played", got, []string{"Go ahead.", "First sentence.", "Second sentence.", "Third one."})
}

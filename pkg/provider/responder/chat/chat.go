// Package chat answers prompts with an llm.Provider, keeping one [History]
// per conversation and rebuilding it from the journal when a conversation is
// resumed by ID after a restart.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/vocalis/pkg/journal"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/responder"
)

// DefaultSystemPrompt keeps replies short and speakable.
const DefaultSystemPrompt = `You are a voice assistant. Your reply will be read aloud by a speech synthesizer.
Answer in plain sentences without markdown, lists, code blocks or emoji.
Keep answers brief unless the user asks for detail.`

const (
	defaultJournalLimit = 40
	replyReserve        = 1024
)

var _ responder.Streamer = (*Responder)(nil)

// Option configures a Responder.
type Option func(*Responder)

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(p string) Option {
	return func(r *Responder) { r.systemPrompt = p }
}

// WithJournal enables resuming conversations from store.
func WithJournal(store journal.Store) Option {
	return func(r *Responder) { r.journal = store }
}

// WithJournalLimit sets how many entries are replayed on resume. Default 40.
func WithJournalLimit(n int) Option {
	return func(r *Responder) { r.journalLimit = n }
}

// WithSummariser sets the history summariser. Defaults to an
// [LLMSummariser] on the same provider.
func WithSummariser(s Summariser) Option {
	return func(r *Responder) { r.summariser = s }
}

// WithTokenBudget overrides the history budget derived from the model's
// context window.
func WithTokenBudget(n int) Option {
	return func(r *Responder) { r.budget = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithMaxReplyTokens caps each reply.
func WithMaxReplyTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// WithIDGenerator replaces uuid.NewString for new conversation IDs.
func WithIDGenerator(fn func() string) Option {
	return func(r *Responder) { r.newID = fn }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Responder) { r.log = l }
}

// Responder implements [responder.Responder] on an LLM.
type Responder struct {
	llm          llm.Provider
	systemPrompt string
	journal      journal.Store
	journalLimit int
	summariser   Summariser
	budget       int
	temperature  float64
	maxTokens    int
	newID        func() string
	log          *slog.Logger

	mu        sync.Mutex
	histories map[string]*History
}

// New returns a Responder backed by provider.
func New(provider llm.Provider, opts ...Option) (*Responder, error) {
	if provider == nil {
		return nil, errors.New("chat: provider must not be nil")
	}
	r := &Responder{
		llm:          provider,
		systemPrompt: DefaultSystemPrompt,
		journalLimit: defaultJournalLimit,
		newID:        uuid.NewString,
		log:          slog.Default(),
		histories:    make(map[string]*History),
	}
	for _, o := range opts {
		o(r)
	}
	if r.summariser == nil {
		r.summariser = NewLLMSummariser(provider)
	}
	if r.budget <= 0 {
		r.budget = max(provider.Capabilities().ContextWindow-replyReserve, replyReserve)
	}
	r.log = r.log.With("component", "chat")
	return r, nil
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, error) {
	return r.respond(ctx, text, sc, nil)
}

// RespondStream implements [responder.Streamer] with the provider's
// streamed completion. The history only records replies that finished.
func (r *Responder) RespondStream(ctx context.Context, text string, sc responder.SessionContext, onDelta func(string)) (responder.Reply, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return r.respond(ctx, text, sc, onDelta)
}

func (r *Responder) respond(ctx context.Context, text string, sc responder.SessionContext, onDelta func(string)) (responder.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return responder.Reply{Context: sc}, errors.New("chat: empty prompt")
	}

	id := sc.ID
	if sc.Reset {
		r.forget(ctx, id)
		id = ""
	}
	if id == "" {
		id = r.newID()
	}
	keep := responder.SessionContext{ID: id}

	h := r.history(ctx, id)
	user := llm.Message{Role: llm.RoleUser, Content: text}
	req := llm.CompletionRequest{
		SystemPrompt: r.systemPrompt,
		Messages:     append(h.Messages(), user),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	var (
		content string
		err     error
	)
	if onDelta != nil {
		content, err = r.stream(ctx, req, onDelta)
	} else {
		content, err = r.complete(ctx, req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return responder.Reply{Context: keep}, fmt.Errorf("%w: %w", responder.ErrCancelled, ctxErr)
		}
		return responder.Reply{Context: keep}, err
	}
	reply := strings.TrimSpace(content)
	if reply == "" {
		return responder.Reply{Context: keep}, responder.ErrEmptyReply
	}

	if err := h.Add(ctx, user, llm.Message{Role: llm.RoleAssistant, Content: reply}); err != nil {
		r.log.Warn("history compaction failed", "session_id", id, "err", err)
	}
	return responder.Reply{Text: reply, Context: keep}, nil
}

func (r *Responder) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	resp, err := r.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat: complete: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

// stream collects a streamed completion, passing each chunk to onDelta.
func (r *Responder) stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string)) (string, error) {
	chunks, err := r.llm.StreamCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat: stream: %w", err)
	}
	var b strings.Builder
	for c := range chunks {
		if c.FinishReason == "error" {
			return b.String(), fmt.Errorf("chat: stream: %s", c.Text)
		}
		if c.Text == "" {
			continue
		}
		b.WriteString(c.Text)
		onDelta(c.Text)
	}
	if err := ctx.Err(); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// history returns the cached history for id, replaying the journal on a
// cache miss.
func (r *Responder) history(ctx context.Context, id string) *History {
	r.mu.Lock()
	h, ok := r.histories[id]
	if !ok {
		h = NewHistory(HistoryConfig{MaxTokens: r.budget, Summariser: r.summariser, Counter: r.llm.CountTokens})
		r.histories[id] = h
	}
	r.mu.Unlock()
	if ok || r.journal == nil {
		return h
	}

	entries, err := r.journal.Recent(ctx, id, r.journalLimit)
	if err != nil {
		r.log.Warn("load journal", "session_id", id, "err", err)
		return h
	}
	replay := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := llm.RoleUser
		if e.Role == journal.RoleAssistant {
			role = llm.RoleAssistant
		}
		replay = append(replay, llm.Message{Role: role, Content: e.Text})
	}
	if len(replay) > 0 {
		r.log.Debug("resumed conversation from journal", "session_id", id, "messages", len(replay))
		if err := h.Add(ctx, replay...); err != nil {
			r.log.Warn("history compaction failed", "session_id", id, "err", err)
		}
	}
	return h
}

// forget drops the in-memory and journaled history of id.
func (r *Responder) forget(ctx context.Context, id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	delete(r.histories, id)
	r.mu.Unlock()
	if r.journal != nil {
		if err := r.journal.Clear(ctx, id); err != nil {
			r.log.Warn("clear journal", "session_id", id, "err", err)
		}
	}
}

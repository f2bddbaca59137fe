package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// charsPerToken is the heuristic ratio used for token estimation.
const charsPerToken = 4

// defaultThresholdRatio is the fraction of the budget at which the oldest
// half of the history is summarised.
const defaultThresholdRatio = 0.75

// History is the token-budgeted message list of one conversation.
//
// When the estimated size exceeds thresholdRatio × maxTokens, the oldest half
// of the messages is replaced by a summary from the [Summariser]. Summaries
// are prepended to [History.Messages] as system messages.
//
// All methods are safe for concurrent use.
type History struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser
	counter        func([]llm.Message) (int, error)

	mu            sync.Mutex
	currentTokens int
	messages      []llm.Message
	summaries     []string
}

// HistoryConfig configures a [History].
type HistoryConfig struct {
	// MaxTokens is the token budget, usually the model's context window
	// minus room for the reply.
	MaxTokens int

	// ThresholdRatio defaults to 0.75 if zero or negative.
	ThresholdRatio float64

	// Summariser compresses older messages. Nil disables summarisation; the
	// oldest messages are then dropped instead.
	Summariser Summariser

	// Counter measures a message, usually the provider's CountTokens. Nil or
	// a failing Counter falls back to four characters per token.
	Counter func([]llm.Message) (int, error)
}

// NewHistory returns an empty History.
func NewHistory(cfg HistoryConfig) *History {
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = defaultThresholdRatio
	}
	return &History{
		maxTokens:      cfg.MaxTokens,
		thresholdRatio: ratio,
		summariser:     cfg.Summariser,
		counter:        cfg.Counter,
	}
}

// Add appends messages and compacts the history when it exceeds the budget.
// The messages are kept even if summarisation fails.
func (h *History) Add(ctx context.Context, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range msgs {
		h.messages = append(h.messages, m)
		h.currentTokens += h.tokens(m)
	}

	threshold := int(float64(h.maxTokens) * h.thresholdRatio)
	if h.maxTokens > 0 && h.currentTokens > threshold && len(h.messages) > 1 {
		if err := h.compactOldest(ctx); err != nil {
			return fmt.Errorf("chat: compact history: %w", err)
		}
	}
	return nil
}

// Messages returns the summaries followed by the live messages.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]llm.Message, 0, len(h.summaries)+len(h.messages))
	for _, s := range h.summaries {
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Summary of the earlier conversation: " + s,
		})
	}
	return append(out, h.messages...)
}

// Len returns the number of live (unsummarised) messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// TokenEstimate returns the estimated size including summaries.
func (h *History) TokenEstimate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTokens
}

// Reset clears all messages and summaries.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
	h.summaries = h.summaries[:0]
	h.currentTokens = 0
}

// compactOldest replaces the oldest half of the messages with a summary, or
// drops them when no summariser is configured. Must be called with h.mu held.
func (h *History) compactOldest(ctx context.Context) error {
	half := max(len(h.messages)/2, 1)
	old := make([]llm.Message, half)
	copy(old, h.messages[:half])

	var summary string
	if h.summariser != nil {
		// The LLM call is slow; release the lock meanwhile.
		h.mu.Unlock()
		s, err := h.summariser.Summarise(ctx, old)
		h.mu.Lock()
		if err != nil {
			return err
		}
		summary = s
	}

	// Messages may have been appended while unlocked; the oldest half is
	// still at the front.
	removed := 0
	for _, m := range h.messages[:half] {
		removed += h.tokens(m)
	}
	h.messages = append(h.messages[:0:0], h.messages[half:]...)
	h.currentTokens -= removed

	if summary != "" {
		h.summaries = append(h.summaries, summary)
		h.currentTokens += h.tokens(llm.Message{Role: llm.RoleSystem, Content: summary})
	}
	return nil
}

// tokens sizes m with the configured counter, or the estimate without one.
func (h *History) tokens(m llm.Message) int {
	if h.counter != nil {
		if n, err := h.counter([]llm.Message{m}); err == nil {
			return n
		}
	}
	return estimateTokens(m)
}

// estimateTokens returns a rough token count using 1 token per 4 characters.
func estimateTokens(m llm.Message) int {
	chars := len(m.Content) + len(m.Role)
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}

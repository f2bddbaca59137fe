package resilience

import (
	"context"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] over several chat models.
// StreamCompletion fails over only while opening the stream; an error chunk
// after that is the caller's to handle.
type LLMFallback struct {
	group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group[llm.Provider]{NewFallbackGroup(primary, primaryName, cfg)}}
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.fg, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.fg, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return ExecuteWithResult(f.fg, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities describes the primary model; a fallback with a smaller
// window may truncate.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.fg.Primary().Capabilities()
}

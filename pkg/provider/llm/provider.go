// Package llm defines the chat-completion interface used by the LLM-backed
// responder.
//
// Backends live in sub-packages (openai, anyllm) and a recording double lives
// in llm/mock. Implementations must be safe for concurrent use.
package llm

import "context"

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is the input to a completion call.
type CompletionRequest struct {
	// Messages is the conversation so far, oldest first. The system prompt is
	// passed separately.
	Messages []Message

	// Temperature controls sampling randomness. Zero uses the backend default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the backend default.
	MaxTokens int

	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string
}

// Chunk is one increment of a streamed completion.
type Chunk struct {
	// Text is the new content in this increment.
	Text string

	// FinishReason is set on the last chunk ("stop", "length", "error").
	FinishReason string
}

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is a chat-completion backend.
type Provider interface {
	// StreamCompletion starts a streamed completion. The returned channel is
	// closed when the completion ends or ctx is cancelled. A backend error
	// after the stream started arrives as a chunk with FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete runs a completion to the end and returns the full text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the prompt size of messages.
	CountTokens(messages []Message) (int, error)

	// Capabilities describes the configured model.
	Capabilities() ModelCapabilities
}

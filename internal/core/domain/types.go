package domain

import "context"

// ToolCall is a structured tool request returned natively by a provider.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Prompt is the structured input sent to an LLM provider.
type Prompt struct {
	System   string
	Messages []Message
	// Tools is set only when the provider should receive the catalog natively.
	Tools []ToolDescriptor
}

// CompletionRequest couples a prompt with generation limits.
type CompletionRequest struct {
	Prompt          Prompt
	MaxOutputTokens int
	ContextWindow   int
}

// Completion is a provider response: plain text, a tool call, or both.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// LLMProvider defines the interface for LLM services
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// StreamingProvider is implemented by providers that can stream tokens.
// SupportsStreaming may report false at runtime (for example when the
// configured backend has no streaming endpoint); callers then fall back to
// Complete.
type StreamingProvider interface {
	LLMProvider
	SupportsStreaming() bool
	Stream(ctx context.Context, req CompletionRequest, onChunk func(string)) (Completion, error)
}

// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a
// local Ollama instance, ...) and exposes a uniform, non-streaming completion
// call plus the metadata the responder needs to budget its prompt.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the backend answered without any choice.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation; the last one drives the reply.
	Messages []Message

	// SystemPrompt is sent ahead of Messages with the system role.
	SystemPrompt string

	// Temperature in [0, 2]; zero keeps the provider default.
	Temperature float64

	// MaxTokens caps the completion; zero keeps the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Capabilities describes the limits of the configured model.
type Capabilities struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many context tokens messages occupy. The
	// estimate may overcount but should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static limits of the model.
	Capabilities() Capabilities
}

// EstimateTokens is a tokenizer-free approximation of roughly four
// characters per token plus per-message role overhead.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total
}

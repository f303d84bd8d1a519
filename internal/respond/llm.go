package respond

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/pkg/provider/llm"
)

// DefaultSystemPrompt primes the model for replies that are spoken aloud.
const DefaultSystemPrompt = `You are Vigil, a helpful voice assistant running on the user's computer.

Your replies are read aloud by a speech synthesizer, so:
- Answer in two or three short sentences unless the user asks for more.
- Talk the way a person talks. Never use markdown, asterisks, code blocks, headings or bullet points.
- When you list things, say "first", "second" and "finally" instead of using a list.
- Prefer plain words over symbols and spell out units.
- If you are not sure, say so briefly instead of guessing.

Good: "Sure. Open a terminal and run sudo apt update, then sudo apt upgrade. That brings every package up to date."
Bad: "Here's how:\n* run ` + "`sudo apt update`" + `\n* **then** upgrade"`

// Defaults for [LLM].
const (
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
)

// LLMOption configures an [LLM] responder.
type LLMOption func(*LLM)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) LLMOption {
	return func(r *LLM) {
		if strings.TrimSpace(p) != "" {
			r.systemPrompt = p
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) LLMOption {
	return func(r *LLM) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(r *LLM) { r.temperature = t }
}

// WithMetrics records responder latency and provider outcomes.
func WithMetrics(m *observe.Metrics) LLMOption {
	return func(r *LLM) { r.metrics = m }
}

// WithProviderName labels provider metrics and logs.
func WithProviderName(name string) LLMOption {
	return func(r *LLM) { r.name = name }
}

// LLM answers every utterance with a language model.
type LLM struct {
	provider     llm.Provider
	systemPrompt string
	maxTokens    int
	temperature  float64
	metrics      *observe.Metrics
	name         string
}

var _ Responder = (*LLM)(nil)

// NewLLM creates an LLM responder over p.
func NewLLM(p llm.Provider, opts ...LLMOption) *LLM {
	r := &LLM{
		provider:     p,
		systemPrompt: DefaultSystemPrompt,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
		name:         "llm",
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Respond implements [Responder].
func (r *LLM) Respond(ctx context.Context, utterance string, turns []history.Turn) (string, error) {
	ctx, span := observe.StartSpan(ctx, "respond.llm")
	defer span.End()

	msgs, err := r.fit(conversation(turns, utterance))
	if err != nil {
		return "", fmt.Errorf("respond: count tokens: %w", err)
	}

	start := time.Now()
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: r.systemPrompt,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if r.metrics != nil {
		r.metrics.ResponseDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordProviderRequest(ctx, r.name, "llm", "error")
			r.metrics.RecordProviderError(ctx, r.name, "llm")
		}
		return "", fmt.Errorf("respond: complete: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordProviderRequest(ctx, r.name, "llm", "ok")
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	observe.Logger(ctx).Debug("respond: llm reply",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"turns", (len(msgs)-1)/2)
	return strings.TrimSpace(resp.Content), nil
}

// conversation renders turns plus the new utterance as chat messages.
func conversation(turns []history.Turn, utterance string) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(turns)+1)
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.User})
		if t.Assistant != "" {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.Assistant})
		}
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})
}

// fit drops the oldest messages until the prompt leaves room for the reply
// inside the model's context window. The new utterance is always kept.
func (r *LLM) fit(msgs []llm.Message) ([]llm.Message, error) {
	window := r.provider.Capabilities().ContextWindow
	if window <= 0 {
		return msgs, nil
	}
	sys, err := r.provider.CountTokens([]llm.Message{{Role: llm.RoleSystem, Content: r.systemPrompt}})
	if err != nil {
		return nil, err
	}
	budget := window - r.maxTokens - sys
	for len(msgs) > 1 {
		n, err := r.provider.CountTokens(msgs)
		if err != nil {
			return nil, err
		}
		if n <= budget {
			break
		}
		msgs = msgs[1:]
		// Never start the prompt with an orphaned assistant reply.
		for len(msgs) > 1 && msgs[0].Role == llm.RoleAssistant {
			msgs = msgs[1:]
		}
	}
	return msgs, nil
}

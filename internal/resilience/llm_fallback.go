package resilience

import (
	"context"

	"github.com/MrWong99/vigil/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over a [FallbackGroup] of language
// model backends.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Complete returns the reply of the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's tokenizer so that context trimming stays
// stable while backends change.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.Primary().CountTokens(messages)
}

// Capabilities reports the smallest context window and output limit across
// all backends, so a request sized for it fits whichever backend serves it.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	caps := f.Primary().Capabilities()
	for _, e := range f.entries[1:] {
		c := e.value.Capabilities()
		if c.ContextWindow > 0 && (caps.ContextWindow == 0 || c.ContextWindow < caps.ContextWindow) {
			caps.ContextWindow = c.ContextWindow
		}
		if c.MaxOutputTokens > 0 && (caps.MaxOutputTokens == 0 || c.MaxOutputTokens < caps.MaxOutputTokens) {
			caps.MaxOutputTokens = c.MaxOutputTokens
		}
	}
	return caps
}

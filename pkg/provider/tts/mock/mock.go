// Package mock provides a test double for the tts.Provider interface.
//
// By default every call returns a clip of 10 ms of a constant level per input
// rune, so callers can tell units apart by length.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/tts"
)

// ErrScripted is returned for texts matched by FailOn.
var ErrScripted = errors.New("mock: scripted synthesis failure")

// SynthesizeCall records one invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Delay simulates synthesis latency; it honours ctx cancellation.
	Delay time.Duration

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// FailOn makes Synthesize fail for texts containing any of these strings.
	FailOn []string

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (audio.Clip, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	delay, err, failOn := p.Delay, p.Err, p.FailOn
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}
	if err != nil {
		return audio.Clip{}, err
	}
	for _, f := range failOn {
		if strings.Contains(text, f) {
			return audio.Clip{}, ErrScripted
		}
	}
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}
	n := len([]rune(text)) * audio.DefaultSampleRate / 100
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 1000
	}
	return audio.Clip{Samples: samples, SampleRate: audio.DefaultSampleRate}, nil
}

// ListVoices implements [tts.Provider].
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Voice(nil), p.Voices...), ctx.Err()
}

// Calls returns every Synthesize invocation so far.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.calls...)
}

// Texts returns the text of every Synthesize invocation so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Text
	}
	return out
}

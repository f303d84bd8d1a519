// Package mock provides a test double for [stt.Provider].
//
// Results are returned in order, one per Transcribe call; the last result
// repeats once the script is exhausted.
//
//	p := &mock.Provider{Results: []mock.Result{{Text: "what time is it"}}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/stt"
)

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

// Call records one Transcribe invocation.
type Call struct {
	Clip audio.Clip
	Cfg  stt.Config
}

// Provider is a scripted implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order.
	Results []Result

	// Calls records every invocation.
	Calls []Call
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, cfg stt.Config) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Clip: clip, Cfg: cfg})

	if len(p.Results) == 0 {
		return stt.Transcript{Duration: clip.Duration()}, nil
	}
	r := p.Results[0]
	if len(p.Results) > 1 {
		p.Results = p.Results[1:]
	}
	if r.Err != nil {
		return stt.Transcript{}, r.Err
	}
	return stt.Transcript{Text: r.Text, Confidence: 1, Duration: clip.Duration()}, nil
}

// CallCount returns the number of Transcribe calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

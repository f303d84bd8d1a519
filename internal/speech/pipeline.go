package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/pkg/audio"
)

var (
	// ErrSynthesisFailed is returned by Speak when not a single unit of the
	// response could be synthesised. Failures of individual units in a longer
	// response are logged and skipped.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")

	// ErrQueueStalled is returned when playback waited longer than the pop
	// timeout for the next clip.
	ErrQueueStalled = errors.New("speech: synthesis queue stalled")

	// ErrStopped is returned by Speak after Stop.
	ErrStopped = errors.New("speech: stopped")
)

// Synthesizer converts one speech unit into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// SynthesizerFunc adapts a function to [Synthesizer].
type SynthesizerFunc func(ctx context.Context, text string) (audio.Clip, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	return f(ctx, text)
}

// Player plays one clip to completion. It is implemented by
// playback.Controller.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// Clip is a synthesised speech unit travelling from the generation stage to
// the playback stage.
type Clip struct {
	Unit  Unit
	Audio audio.Clip
}

const (
	DefaultQueueSize   = 2
	DefaultPopTimeout  = 10 * time.Second
	DefaultBypassChars = 100
)

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithQueueSize sets how many synthesised clips may wait ahead of the one
// playing.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithPopTimeout sets how long playback waits for the next clip.
func WithPopTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.popTimeout = d
		}
	}
}

// WithBypassChars sets the length (in characters) up to which a response is
// synthesised as a single unit.
func WithBypassChars(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.bypassChars = n
		}
	}
}

// WithArchive keeps every synthesised clip in a.
func WithArchive(a *ClipArchive) Option {
	return func(p *Pipeline) { p.archive = a }
}

// WithMetrics records synthesis latency and skipped units.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline synthesises speech units ahead of playback through a bounded
// queue. Units are always played in order. One Speak call runs at a time;
// Stop ends the current one at the next unit boundary.
type Pipeline struct {
	synth  Synthesizer
	player Player

	queueSize   int
	popTimeout  time.Duration
	bypassChars int
	archive     *ClipArchive
	metrics     *observe.Metrics

	mu  sync.Mutex
	cur *run
}

// NewPipeline creates a pipeline.
func NewPipeline(synth Synthesizer, player Player, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:       synth,
		player:      player,
		queueSize:   DefaultQueueSize,
		popTimeout:  DefaultPopTimeout,
		bypassChars: DefaultBypassChars,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// run is the state of one Speak call. stopped is the cooperative flag; done
// wakes stages blocked on the queue once it is set.
type run struct {
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func (r *run) stop() {
	r.once.Do(func() {
		r.stopped.Store(true)
		close(r.done)
	})
}

// Stop asks the current Speak call to finish. No further unit is synthesised,
// queued or started, and the context of the clip being played is cancelled.
// Stop is safe to call at any time and from any goroutine.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	r := p.cur
	p.mu.Unlock()
	if r != nil {
		r.stop()
	}
}

func (p *Pipeline) begin() *run {
	r := &run{done: make(chan struct{})}
	p.mu.Lock()
	p.cur = r
	p.mu.Unlock()
	return r
}

func (p *Pipeline) end(r *run) {
	p.mu.Lock()
	if p.cur == r {
		p.cur = nil
	}
	p.mu.Unlock()
}

// Speak synthesises and plays text, returning when the last unit finished
// playing. Short texts are synthesised as a single unit; longer ones are split
// with [Segment] and streamed.
func (p *Pipeline) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	r := p.begin()
	defer p.end(r)

	if utf8.RuneCountInString(text) <= p.bypassChars {
		return p.speakOne(ctx, r, Unit{Text: text})
	}
	units := Segment(text)
	if len(units) == 1 {
		return p.speakOne(ctx, r, units[0])
	}
	return p.speakStreamed(ctx, r, units)
}

func (p *Pipeline) speakOne(ctx context.Context, r *run, u Unit) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	clip, err := p.synthesize(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if r.stopped.Load() {
		return ErrStopped
	}
	return p.play(ctx, r, clip)
}

func (p *Pipeline) speakStreamed(ctx context.Context, r *run, units []Unit) error {
	type item struct {
		clip Clip
		end  bool
	}
	queue := make(chan item, p.queueSize)
	var played, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)

	// Generation stage.
	g.Go(func() error {
		defer func() {
			select {
			case queue <- item{end: true}:
			case <-gctx.Done():
			case <-r.done:
			}
		}()
		for _, u := range units {
			if r.stopped.Load() {
				return nil
			}
			clip, err := p.synthesize(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				failed.Add(1)
				continue
			}
			if r.stopped.Load() {
				return nil
			}
			select {
			case queue <- item{clip: clip}:
			case <-gctx.Done():
				return nil
			case <-r.done:
				return nil
			}
		}
		return nil
	})

	// Playback stage.
	g.Go(func() error {
		timer := time.NewTimer(p.popTimeout)
		defer timer.Stop()
		for {
			select {
			case it := <-queue:
				if it.end {
					return nil
				}
				if r.stopped.Load() {
					return ErrStopped
				}
				if err := p.play(gctx, r, it.clip); err != nil {
					return err
				}
				played.Add(1)
			case <-timer.C:
				return fmt.Errorf("%w: no clip within %v", ErrQueueStalled, p.popTimeout)
			case <-r.done:
				return ErrStopped
			case <-gctx.Done():
				return gctx.Err()
			}
			timer.Reset(p.popTimeout)
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if played.Load() == 0 && failed.Load() > 0 {
		return fmt.Errorf("%w: all %d units failed", ErrSynthesisFailed, failed.Load())
	}
	return nil
}

// synthesize runs one unit through the synthesizer, logging and counting
// failures and archiving successes.
func (p *Pipeline) synthesize(ctx context.Context, u Unit) (Clip, error) {
	start := time.Now()
	a, err := p.synth.Synthesize(ctx, u.Text)
	if p.metrics != nil {
		p.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err == nil && a.Empty() {
		err = errors.New("empty audio")
	}
	if err != nil {
		if ctx.Err() == nil {
			observe.Logger(ctx).Warn("speech: skipping unit after synthesis failure",
				"unit", u.Index, "text", u.Text, "err", err)
			if p.metrics != nil {
				p.metrics.SkippedUnits.Add(ctx, 1)
			}
		}
		return Clip{}, fmt.Errorf("%w: unit %d: %w", ErrSynthesisFailed, u.Index, err)
	}
	c := Clip{Unit: u, Audio: a}
	if p.archive != nil {
		if err := p.archive.Save(c); err != nil {
			slog.Warn("speech: archiving clip", "unit", u.Index, "err", err)
		}
	}
	return c, nil
}

// play hands one clip to the player. The clip's context ends when the run is
// stopped, so a Stop that lands after the caller's flag check still cuts the
// clip short instead of relying on the player being busy yet.
func (p *Pipeline) play(ctx context.Context, r *run, c Clip) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	if err := p.player.Play(ctx, c.Audio); err != nil {
		if r.stopped.Load() {
			return ErrStopped
		}
		return fmt.Errorf("speech: play unit %d: %w", c.Unit.Index, err)
	}
	return nil
}

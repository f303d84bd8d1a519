// Package playback owns the output device and plays one clip at a time with
// prompt cancellation.
//
// A [Controller] writes a clip to its [audio.Output] in short chunks so that
// [Controller.Cancel] takes effect within one chunk. Only one Play may be in
// flight; a second concurrent call fails fast with [ErrPlaybackBusy] rather
// than queueing, since ordering of spoken units is the caller's concern.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/pkg/audio"
)

var (
	// ErrPlaybackBusy is returned by Play while another clip is playing.
	ErrPlaybackBusy = errors.New("playback: busy")

	// ErrPlaybackFailed wraps output device failures.
	ErrPlaybackFailed = errors.New("playback: output failed")

	// ErrCancelled is returned by Play after Cancel.
	ErrCancelled = errors.New("playback: cancelled")
)

const (
	// DefaultSpeed is the tempo applied to every clip.
	DefaultSpeed = 1.2

	// DefaultChunk is the amount of audio written per device call and thus
	// the upper bound on Cancel latency.
	DefaultChunk = 50 * time.Millisecond
)

// Option configures a [Controller].
type Option func(*Controller)

// WithSpeed sets the playback tempo. Values ≤ 0 are ignored.
func WithSpeed(speed float64) Option {
	return func(c *Controller) {
		if speed > 0 {
			c.speed.Store(speed)
		}
	}
}

// WithChunk sets the write granularity.
func WithChunk(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.chunk = d
		}
	}
}

// WithMetrics records playback duration and the active gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the exclusive owner of one output device.
//
// All methods are safe for concurrent use.
type Controller struct {
	out     audio.Output
	chunk   time.Duration
	metrics *observe.Metrics

	speed atomicFloat
	busy  atomic.Bool

	mu     sync.Mutex
	cancel chan struct{} // closed to stop the clip in flight; nil when idle
}

// New creates a Controller writing to out.
func New(out audio.Output, opts ...Option) *Controller {
	c := &Controller{out: out, chunk: DefaultChunk}
	c.speed.Store(DefaultSpeed)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetSpeed changes the tempo for clips started afterwards.
func (c *Controller) SetSpeed(speed float64) {
	if speed > 0 {
		c.speed.Store(speed)
	}
}

// Speed returns the current tempo.
func (c *Controller) Speed() float64 { return c.speed.Load() }

// Playing reports whether a clip is in flight.
func (c *Controller) Playing() bool { return c.busy.Load() }

// Cancel stops the clip in flight, if any, and discards whatever the device
// has buffered. Calling it while idle or more than once is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// Play writes clip to the output and blocks until the device drained it, the
// clip was cancelled or ctx is done.
func (c *Controller) Play(ctx context.Context, clip audio.Clip) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrPlaybackBusy
	}
	defer c.busy.Store(false)

	cancel := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.cancel == cancel {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	if clip.Empty() {
		return nil
	}

	if c.metrics != nil {
		c.metrics.ActivePlayback.Add(ctx, 1)
		defer c.metrics.ActivePlayback.Add(context.WithoutCancel(ctx), -1)
	}
	start := time.Now()

	err := c.write(ctx, cancel, clip)
	if c.metrics != nil {
		c.metrics.PlaybackDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			c.out.Flush()
		}
		return err
	}
	return nil
}

func (c *Controller) write(ctx context.Context, cancel <-chan struct{}, clip audio.Clip) error {
	rate := c.out.SampleRate()
	samples := audio.Convert(audio.Speed(clip, c.speed.Load()), rate).Samples

	// Writes are bound to a context that also ends on Cancel so a device
	// blocked on a full buffer returns promptly.
	wctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go func() {
		select {
		case <-cancel:
			stop(ErrCancelled)
		case <-wctx.Done():
		}
	}()

	step := max(1, int(int64(rate)*int64(c.chunk)/int64(time.Second)))
	for off := 0; off < len(samples); off += step {
		select {
		case <-cancel:
			return ErrCancelled
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		end := min(off+step, len(samples))
		if err := c.out.Write(wctx, samples[off:end]); err != nil {
			return c.classify(ctx, wctx, err)
		}
	}
	if err := c.out.Drain(wctx); err != nil {
		return c.classify(ctx, wctx, err)
	}
	return nil
}

// classify maps a device error to the caller's view: cancellation wins over
// whatever the device reported while being interrupted.
func (c *Controller) classify(ctx, wctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(context.Cause(wctx), ErrCancelled) {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
}

// atomicFloat stores a float64 in an atomic.Value.
type atomicFloat struct{ v atomic.Value }

func (f *atomicFloat) Store(x float64) { f.v.Store(x) }

func (f *atomicFloat) Load() float64 {
	x, _ := f.v.Load().(float64)
	return x
}

// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record what passes through them
// so that tests can assert on it, and expose exported fields that control
// failures and timing.
//
// Typical usage:
//
//	src := mock.NewScriptSource(16000, 1024, 100, 100, 800, 800)
//	out := &mock.Output{Rate: 16000}
package mock

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
)

// ErrScriptExhausted is returned by [ScriptSource.ReadFrame] once every
// scripted frame has been read.
var ErrScriptExhausted = errors.New("mock: script exhausted")

// Frame returns a frame of size samples whose RMS is level. Samples alternate
// in sign so the signal has no DC offset.
func Frame(rate, size int, level float64) audio.Frame {
	s := make([]int16, size)
	v := int16(level)
	for i := range s {
		if i%2 == 0 {
			s[i] = v
		} else {
			s[i] = -v
		}
	}
	return audio.Frame{Samples: s, SampleRate: rate}
}

// ─── ScriptSource ─────────────────────────────────────────────────────────────

// ScriptSource replays a fixed sequence of frames, one per ReadFrame call.
type ScriptSource struct {
	mu     sync.Mutex
	frames []audio.Frame
	pos    int
	closed bool
}

// NewScriptSource builds a source whose frames have the given RMS levels.
func NewScriptSource(rate, size int, levels ...float64) *ScriptSource {
	frames := make([]audio.Frame, len(levels))
	for i, l := range levels {
		f := Frame(rate, size, l)
		f.Timestamp = time.Duration(i) * f.Duration()
		frames[i] = f
	}
	return &ScriptSource{frames: frames}
}

// ReadFrame implements [audio.Source].
func (s *ScriptSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		return audio.Frame{}, ErrScriptExhausted
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Read returns how many frames have been consumed.
func (s *ScriptSource) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Closed reports whether Close was called.
func (s *ScriptSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements [audio.Source].
func (s *ScriptSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ─── LiveSource ───────────────────────────────────────────────────────────────

// LiveSource blocks in ReadFrame until the test pushes a frame or a failure.
type LiveSource struct {
	rate, size int
	frames     chan audio.Frame
	fail       chan error
	failOnce   sync.Once
	closed     atomic.Bool
}

// NewLiveSource creates a LiveSource producing frames of size samples.
func NewLiveSource(rate, size int) *LiveSource {
	return &LiveSource{
		rate:   rate,
		size:   size,
		frames: make(chan audio.Frame, 256),
		fail:   make(chan error, 1),
	}
}

// Push queues a frame whose first sample is v and whose RMS is |v|.
func (s *LiveSource) Push(v int16) {
	s.frames <- Frame(s.rate, s.size, float64(v))
}

// PushLevel queues a frame with the given RMS level.
func (s *LiveSource) PushLevel(level float64) {
	s.frames <- Frame(s.rate, s.size, level)
}

// Fail makes the next ReadFrame return err once queued frames are consumed.
func (s *LiveSource) Fail(err error) {
	s.failOnce.Do(func() { s.fail <- err })
}

// Closed reports whether Close has been called.
func (s *LiveSource) Closed() bool { return s.closed.Load() }

// ReadFrame implements [audio.Source].
func (s *LiveSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.fail:
		return audio.Frame{}, err
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Close implements [audio.Source].
func (s *LiveSource) Close() error {
	s.closed.Store(true)
	return nil
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock implementation of [audio.Output].
// Set the exported fields before use; inspect with the accessor methods after.
type Output struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// WriteDelay simulates device time per Write call.
	WriteDelay time.Duration

	// WriteErr, if non-nil, is returned by every Write.
	WriteErr error

	written []int16
	writes  int
	flushes int
	drains  int
	closed  bool
}

var _ audio.Output = (*Output)(nil)

// SampleRate implements [audio.Output].
func (o *Output) SampleRate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Rate == 0 {
		return audio.DefaultSampleRate
	}
	return o.Rate
}

// Write implements [audio.Output]. It records samples, honouring WriteDelay
// and ctx cancellation.
func (o *Output) Write(ctx context.Context, samples []int16) error {
	o.mu.Lock()
	delay, werr := o.WriteDelay, o.WriteErr
	o.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if werr != nil {
		return werr
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes++
	o.written = append(o.written, samples...)
	return nil
}

// Drain implements [audio.Output].
func (o *Output) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.drains++
	o.mu.Unlock()
	return ctx.Err()
}

// Flush implements [audio.Output].
func (o *Output) Flush() {
	o.mu.Lock()
	o.flushes++
	o.mu.Unlock()
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// Samples returns a copy of every sample written so far.
func (o *Output) Samples() []int16 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.written)
}

// Writes returns the number of successful Write calls.
func (o *Output) Writes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writes
}

// Flushes returns the number of Flush calls.
func (o *Output) Flushes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes
}

// Closed reports whether Close has been called.
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

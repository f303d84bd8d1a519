package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrTapBusy is returned by [Tap.Subscribe] while another subscription is open.
	ErrTapBusy = errors.New("audio: tap already has a subscriber")

	// ErrTapClosed is returned by [Subscription.ReadFrame] after the capture
	// loop has stopped.
	ErrTapClosed = errors.New("audio: tap closed")
)

// Tap runs the continuous capture path. It reads frames from a [Source] on its
// own goroutine and hands each one to the current subscriber, if any. Frames
// captured while nobody is subscribed, or while the subscriber is behind, are
// dropped: the capture loop never blocks on a consumer.
//
// At most one subscription is open at a time, which is how the conversation
// decides who consumes the microphone (the wake detector while sleeping, the
// recognizer while listening).
type Tap struct {
	src Source

	mu   sync.Mutex
	sub  *Subscription
	err  error
	done chan struct{}

	captured atomic.Int64
	dropped  atomic.Int64
}

// NewTap creates a Tap over src. Call [Tap.Run] to start capturing.
func NewTap(src Source) *Tap {
	return &Tap{src: src, done: make(chan struct{})}
}

// Run captures frames until ctx is cancelled or the source fails. It closes
// the underlying source before returning. Run must be called at most once.
func (t *Tap) Run(ctx context.Context) error {
	defer close(t.done)
	defer func() {
		if err := t.src.Close(); err != nil {
			slog.Warn("audio: closing capture source", "err", err)
		}
	}()

	for {
		frame, err := t.src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.setErr(ErrTapClosed)
				return nil
			}
			err = fmt.Errorf("audio: capture: %w", err)
			t.setErr(err)
			return err
		}
		t.captured.Add(1)
		t.deliver(frame)
	}
}

func (t *Tap) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

func (t *Tap) deliver(frame Frame) {
	t.mu.Lock()
	sub := t.sub
	t.mu.Unlock()
	if sub == nil {
		t.dropped.Add(1)
		return
	}
	select {
	case sub.ch <- frame:
	default:
		t.dropped.Add(1)
	}
}

// Subscribe opens the single subscription with room for buffer frames.
// Frames captured before Subscribe returns are never delivered.
func (t *Tap) Subscribe(buffer int) (*Subscription, error) {
	if buffer < 1 {
		buffer = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return nil, ErrTapBusy
	}
	s := &Subscription{tap: t, ch: make(chan Frame, buffer)}
	t.sub = s
	return s, nil
}

// Stats returns the number of frames captured and dropped so far.
func (t *Tap) Stats() (captured, dropped int64) {
	return t.captured.Load(), t.dropped.Load()
}

func (t *Tap) unsubscribe(s *Subscription) {
	t.mu.Lock()
	if t.sub == s {
		t.sub = nil
	}
	t.mu.Unlock()
}

// Subscription is the consumer side of a [Tap]. It implements [Source].
type Subscription struct {
	tap  *Tap
	ch   chan Frame
	once sync.Once
}

var _ Source = (*Subscription)(nil)

// ReadFrame returns the next delivered frame.
func (s *Subscription) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.ch:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.tap.done:
		s.tap.mu.Lock()
		err := s.tap.err
		s.tap.mu.Unlock()
		if err == nil {
			err = ErrTapClosed
		}
		return Frame{}, err
	}
}

// Close releases the subscription so another consumer can subscribe. Frames
// still buffered are discarded. Close is idempotent.
func (s *Subscription) Close() error {
	s.once.Do(func() { s.tap.unsubscribe(s) })
	return nil
}

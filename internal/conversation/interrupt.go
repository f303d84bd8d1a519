package conversation

import (
	"bufio"
	"context"
	"io"
	"log/slog"
)

// InterruptSource delivers barge-in requests. A value is sent for every
// request; a Session only honours it while speaking.
type InterruptSource interface {
	Interrupts() <-chan struct{}
}

// Trigger is an InterruptSource fired programmatically, for example by the
// HTTP control surface.
type Trigger struct {
	ch chan struct{}
}

var _ InterruptSource = (*Trigger)(nil)

// NewTrigger creates a Trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire requests an interrupt. Requests made while one is still pending are
// merged. Fire never blocks.
func (t *Trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// Interrupts implements [InterruptSource].
func (t *Trigger) Interrupts() <-chan struct{} { return t.ch }

// LineReader turns every line read from r into an interrupt, so pressing
// Enter on a terminal stops the assistant mid-sentence.
type LineReader struct {
	ch chan struct{}
}

var _ InterruptSource = (*LineReader)(nil)

// NewLineReader starts reading r until ctx is done or r is exhausted. A
// blocked Read on r is not interrupted by ctx; the reader goroutine exits on
// the next line or at EOF.
func NewLineReader(ctx context.Context, r io.Reader) *LineReader {
	lr := &LineReader{ch: make(chan struct{}, 1)}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			select {
			case lr.ch <- struct{}{}:
			default:
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("conversation: interrupt reader stopped", "err", err)
		}
	}()
	return lr
}

// Interrupts implements [InterruptSource].
func (lr *LineReader) Interrupts() <-chan struct{} { return lr.ch }

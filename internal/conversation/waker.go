package conversation

import (
	"context"
	"fmt"

	"github.com/MrWong99/vigil/internal/wake"
	"github.com/MrWong99/vigil/pkg/audio"
)

// Waker blocks until the user addresses the assistant.
type Waker interface {
	WaitForWake(ctx context.Context) (wake.Event, error)
}

// defaultWakeBuffer is the number of frames a TapWaker subscription may
// queue, about two seconds of audio at the default frame size.
const defaultWakeBuffer = 32

// TapWaker feeds a wake detector from a capture tap. The tap is subscribed
// only for the duration of a wait, so the detector never sees audio captured
// while a conversation is active.
type TapWaker struct {
	tap      *audio.Tap
	detector *wake.Detector
	buffer   int
}

var _ Waker = (*TapWaker)(nil)

// NewTapWaker creates a TapWaker.
func NewTapWaker(tap *audio.Tap, detector *wake.Detector) *TapWaker {
	return &TapWaker{tap: tap, detector: detector, buffer: defaultWakeBuffer}
}

// Calibrate seeds the detector's ambient estimate from live capture. A
// wake.ErrCalibrationFailed result leaves defaults in effect.
func (w *TapWaker) Calibrate(ctx context.Context) error {
	sub, err := w.tap.Subscribe(w.buffer)
	if err != nil {
		return fmt.Errorf("conversation: calibrate: %w", err)
	}
	defer sub.Close()
	return w.detector.Calibrate(ctx, sub)
}

// WaitForWake implements [Waker]. The detector's smoothing window is cleared
// first so readings from before the last conversation do not count.
func (w *TapWaker) WaitForWake(ctx context.Context) (wake.Event, error) {
	sub, err := w.tap.Subscribe(w.buffer)
	if err != nil {
		return wake.Event{}, fmt.Errorf("conversation: wait for wake: %w", err)
	}
	defer sub.Close()
	w.detector.Resume()
	return w.detector.Wait(ctx, sub)
}

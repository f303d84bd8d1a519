// Package wake turns a live microphone stream into discrete wake events.
//
// The detector is a loudness heuristic, not a keyword model: frame energy is
// smoothed over a short window, compared against a threshold derived from the
// room's ambient noise, and debounced by a small state machine with a cooldown.
//
//	frame ─► Measure ─► Threshold.Observe (smoothing, drift) ─► Gate.Step ─► Event
package wake

import (
	"errors"
	"math"

	"github.com/MrWong99/vigil/pkg/audio"
)

var (
	// ErrInvalidFrame is returned by Measure for frames without samples.
	ErrInvalidFrame = errors.New("wake: invalid frame")

	// ErrCalibrationFailed is returned by Threshold.Calibrate when no usable
	// reading was collected. The threshold falls back to defaults.
	ErrCalibrationFailed = errors.New("wake: calibration failed")
)

// Measure returns the RMS loudness of frame.
func Measure(frame audio.Frame) (float64, error) {
	if len(frame.Samples) == 0 {
		return 0, ErrInvalidFrame
	}
	var sum float64
	for _, s := range frame.Samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame.Samples))), nil
}

// valid reports whether r can be used as an energy reading.
func valid(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= 0
}

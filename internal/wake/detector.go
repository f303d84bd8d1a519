package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
)

// Event is a wake event.
type Event struct {
	// At is when the gate fired.
	At time.Time
	// Ratio is the smoothed-energy ratio of the triggering reading.
	Ratio float64
	// Threshold is the threshold state at the trigger instant.
	Threshold ThresholdState
}

// Config configures a [Detector].
type Config struct {
	// Sensitivity in [0, 1]; higher values raise the trigger threshold.
	Sensitivity float64
	// CalibrationFrames is the number of frames averaged at start-up. Default 10.
	CalibrationFrames int
	Gate              GateConfig
}

// Option configures a [Detector].
type Option func(*Detector)

// WithSoundDetected registers a callback for the first loud reading of a run.
// It runs on the capture path and must not block.
func WithSoundDetected(fn func(ratio float64)) Option {
	return func(d *Detector) { d.onSound = fn }
}

// WithGateOptions forwards options to the underlying [Gate].
func WithGateOptions(opts ...GateOption) Option {
	return func(d *Detector) { d.gateOpts = append(d.gateOpts, opts...) }
}

// Detector composes [Measure], [Threshold] and [Gate] into a blocking wait for
// the next wake event. The capture path drives all mutation; the mutex only
// serialises it against observers reading State.
type Detector struct {
	mu        sync.Mutex
	cfg       Config
	threshold *Threshold
	gate      *Gate
	gateOpts  []GateOption
	onSound   func(float64)
}

// NewDetector creates a detector. Call Calibrate before the first Wait;
// without calibration the default ambient estimate is used.
func NewDetector(cfg Config, opts ...Option) *Detector {
	if cfg.CalibrationFrames <= 0 {
		cfg.CalibrationFrames = 10
	}
	d := &Detector{cfg: cfg}
	for _, o := range opts {
		o(d)
	}
	d.threshold = NewThreshold(cfg.Sensitivity)
	d.gate = NewGate(cfg.Gate, d.gateOpts...)
	return d
}

// Calibrate measures CalibrationFrames frames from src and seeds the ambient
// estimate. A returned ErrCalibrationFailed is not fatal: defaults are in
// effect. Other errors come from the source or ctx.
func (d *Detector) Calibrate(ctx context.Context, src audio.Source) error {
	readings := make([]float64, 0, d.cfg.CalibrationFrames)
	for range d.cfg.CalibrationFrames {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("wake: calibrate: %w", err)
		}
		r, err := Measure(frame)
		if err != nil {
			continue
		}
		readings = append(readings, r)
	}

	d.mu.Lock()
	err := d.threshold.Calibrate(readings)
	st := d.threshold.State()
	d.mu.Unlock()

	if err != nil {
		slog.Warn("wake: calibration collected no usable readings, using defaults",
			"frames", d.cfg.CalibrationFrames, "ambient", st.Ambient, "threshold", st.Trigger)
		return err
	}
	slog.Info("wake: calibrated", "ambient", st.Ambient, "threshold", st.Trigger,
		"sensitivity", d.threshold.Sensitivity())
	return nil
}

// Wait consumes frames from src until the gate fires, ctx is done, or src
// fails. Invalid frames are skipped.
func (d *Detector) Wait(ctx context.Context, src audio.Source) (Event, error) {
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("wake: wait: %w", err)
		}
		r, err := Measure(frame)
		if errors.Is(err, ErrInvalidFrame) {
			continue
		}
		if ev, ok := d.step(r); ok {
			return ev, nil
		}
	}
}

func (d *Detector) step(reading float64) (Event, bool) {
	d.mu.Lock()
	ratio, ok := d.threshold.Observe(reading)
	if !ok {
		d.mu.Unlock()
		return Event{}, false
	}
	decision := d.gate.Step(ratio)
	var ev Event
	if decision == Wake {
		ev = Event{At: d.gate.lastWake, Ratio: ratio, Threshold: d.threshold.State()}
		d.threshold.ResetWindow()
	}
	d.mu.Unlock()

	switch decision {
	case SoundDetected:
		slog.Debug("wake: sound detected", "ratio", ratio)
		if d.onSound != nil {
			d.onSound(ratio)
		}
	case Wake:
		slog.Info("wake: triggered", "ratio", ratio, "threshold", ev.Threshold.Trigger)
		return ev, true
	}
	return Event{}, false
}

// Resume clears the smoothing window. Call it before waiting again after the
// detector has not been fed for a while, so stale readings do not count.
func (d *Detector) Resume() {
	d.mu.Lock()
	d.threshold.ResetWindow()
	d.mu.Unlock()
}

// SetGateConfig swaps the gate tuning at runtime.
func (d *Detector) SetGateConfig(cfg GateConfig) {
	d.mu.Lock()
	d.gate.SetConfig(cfg)
	d.mu.Unlock()
}

// GateConfig returns the gate tuning in effect.
func (d *Detector) GateConfig() GateConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gate.Config()
}

// Status is a snapshot for observers.
type Status struct {
	Threshold ThresholdState
	Gate      ActivationState
}

// Status returns the detector's current threshold and gate state.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{Threshold: d.threshold.State(), Gate: d.gate.State()}
}

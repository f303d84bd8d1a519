package wake

import "math"

const (
	// DefaultAmbient and DefaultTrigger apply when calibration collects no
	// usable reading.
	DefaultAmbient = 100.0
	DefaultTrigger = 400.0

	// TriggerFloor is the lowest trigger threshold ever derived.
	TriggerFloor = 300.0

	// SmoothingWindow is the number of readings averaged into the smoothed energy.
	SmoothingWindow = 10

	// AdaptEvery is the reading interval at which the ambient estimate may drift.
	AdaptEvery = 100

	adaptKeep = 0.95
)

// TriggerFor derives the trigger threshold for an ambient level. It is
// monotonically non-decreasing in sensitivity.
func TriggerFor(ambient, sensitivity float64) float64 {
	return math.Max(ambient*(3.0+sensitivity*4.0), TriggerFloor)
}

// ThresholdState is a snapshot of a [Threshold].
type ThresholdState struct {
	Ambient  float64
	Trigger  float64
	Samples  int
	Smoothed float64
}

// Threshold tracks ambient noise and the trigger threshold derived from it.
// It is not safe for concurrent use; the detector owns it on the capture path.
type Threshold struct {
	sensitivity float64
	ambient     float64
	trigger     float64
	count       int

	ring [SmoothingWindow]float64
	head int
	fill int
}

// NewThreshold creates a threshold with the given sensitivity (clamped to
// [0, 1]) initialised to the default ambient estimate.
func NewThreshold(sensitivity float64) *Threshold {
	t := &Threshold{sensitivity: clamp01(sensitivity)}
	t.ambient = DefaultAmbient
	t.trigger = DefaultTrigger
	return t
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}

// Sensitivity returns the configured sensitivity.
func (t *Threshold) Sensitivity() float64 { return t.sensitivity }

// Calibrate seeds the ambient estimate from readings taken while the room is
// assumed quiet. NaN, infinite and non-positive readings are discarded. If none
// remain, the defaults are applied and ErrCalibrationFailed is returned.
func (t *Threshold) Calibrate(readings []float64) error {
	var sum float64
	var n int
	for _, r := range readings {
		if !valid(r) || r == 0 {
			continue
		}
		sum += r
		n++
	}
	if n == 0 {
		t.ambient = DefaultAmbient
		t.trigger = DefaultTrigger
		return ErrCalibrationFailed
	}
	t.ambient = sum / float64(n)
	t.trigger = TriggerFor(t.ambient, t.sensitivity)
	return nil
}

// Observe records a reading and returns the smoothed energy relative to the
// trigger threshold. Invalid readings leave all state untouched and return
// ok=false.
//
// Every AdaptEvery readings, if the smoothed energy is below half the trigger,
// the ambient estimate drifts 5% towards it.
func (t *Threshold) Observe(reading float64) (ratio float64, ok bool) {
	if !valid(reading) {
		return 0, false
	}
	t.ring[t.head] = reading
	t.head = (t.head + 1) % SmoothingWindow
	if t.fill < SmoothingWindow {
		t.fill++
	}
	t.count++

	smoothed := t.smoothed()
	if t.count%AdaptEvery == 0 && smoothed < 0.5*t.trigger {
		t.ambient = t.ambient*adaptKeep + smoothed*(1-adaptKeep)
		t.trigger = TriggerFor(t.ambient, t.sensitivity)
	}
	return smoothed / t.trigger, true
}

func (t *Threshold) smoothed() float64 {
	if t.fill == 0 {
		return 0
	}
	var sum float64
	for i := range t.fill {
		sum += t.ring[i]
	}
	return sum / float64(t.fill)
}

// ResetWindow clears the smoothing window. The ambient estimate is kept.
func (t *Threshold) ResetWindow() {
	t.ring = [SmoothingWindow]float64{}
	t.head, t.fill = 0, 0
}

// State returns a snapshot.
func (t *Threshold) State() ThresholdState {
	return ThresholdState{
		Ambient:  t.ambient,
		Trigger:  t.trigger,
		Samples:  t.count,
		Smoothed: t.smoothed(),
	}
}

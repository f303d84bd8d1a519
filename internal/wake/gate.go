package wake

import (
	"fmt"
	"math"
	"time"
)

// GateConfig tunes the activation gate.
type GateConfig struct {
	// RiseRatio is the smoothed-energy ratio a reading must exceed to count
	// as loud. Default 1.5.
	RiseRatio float64

	// ConfirmRatio is the ratio the triggering reading must still exceed.
	// Default 1.3.
	ConfirmRatio float64

	// Required is the number of consecutive loud readings needed. Default 5.
	Required int

	// Cooldown is the minimum time between two wake events. Default 3s.
	Cooldown time.Duration
}

// DefaultGateConfig returns the standard tuning.
func DefaultGateConfig() GateConfig {
	return GateConfig{RiseRatio: 1.5, ConfirmRatio: 1.3, Required: 5, Cooldown: 3 * time.Second}
}

func (c GateConfig) withDefaults() GateConfig {
	d := DefaultGateConfig()
	if c.RiseRatio <= 0 {
		c.RiseRatio = d.RiseRatio
	}
	if c.ConfirmRatio <= 0 {
		c.ConfirmRatio = d.ConfirmRatio
	}
	if c.Required <= 0 {
		c.Required = d.Required
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Decision is the outcome of feeding one reading to the gate.
type Decision int

const (
	// None means nothing noteworthy happened.
	None Decision = iota
	// SoundDetected marks the first loud reading of a run. It never wakes.
	SoundDetected
	// Wake means the user is addressing the system.
	Wake
)

func (d Decision) String() string {
	switch d {
	case None:
		return "none"
	case SoundDetected:
		return "sound_detected"
	case Wake:
		return "wake"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Phase identifies the gate's state.
type Phase int

const (
	Idle Phase = iota
	Rising
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Rising:
		return "rising"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ActivationState describes the gate at one instant.
type ActivationState struct {
	Phase Phase
	// Count is the consecutive loud readings seen (Rising only).
	Count int
	// Until is when the cooldown ends (Cooldown only).
	Until time.Time
}

// GateOption configures a [Gate].
type GateOption func(*Gate)

// WithClock replaces time.Now. Tests use it to step time deterministically.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// Gate is the hysteresis and cooldown state machine. Not safe for concurrent use.
type Gate struct {
	cfg         GateConfig
	now         func() time.Time
	consecutive int
	lastWake    time.Time
}

// NewGate creates a gate. Zero fields in cfg take their defaults.
func NewGate(cfg GateConfig, opts ...GateOption) *Gate {
	g := &Gate{cfg: cfg.withDefaults(), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig { return g.cfg }

// SetConfig replaces the tuning. The consecutive counter and the time of the
// last wake are kept.
func (g *Gate) SetConfig(cfg GateConfig) { g.cfg = cfg.withDefaults() }

// Step feeds one smoothed-energy ratio through the gate.
func (g *Gate) Step(ratio float64) Decision {
	if math.IsNaN(ratio) || ratio < 0 {
		return None
	}
	if ratio <= g.cfg.RiseRatio {
		g.consecutive = 0
		return None
	}

	g.consecutive++
	if g.consecutive < g.cfg.Required {
		if g.consecutive == 1 {
			return SoundDetected
		}
		return None
	}

	now := g.now()
	if !g.lastWake.IsZero() && now.Sub(g.lastWake) <= g.cfg.Cooldown {
		// Still cooling down: keep counting so a sustained sound can wake
		// as soon as the cooldown ends.
		return None
	}
	if ratio <= g.cfg.ConfirmRatio {
		g.consecutive = 0
		return None
	}
	g.consecutive = 0
	g.lastWake = now
	return Wake
}

// State reports the gate's phase.
func (g *Gate) State() ActivationState {
	if !g.lastWake.IsZero() {
		until := g.lastWake.Add(g.cfg.Cooldown)
		if g.now().Before(until) {
			return ActivationState{Phase: Cooldown, Until: until, Count: g.consecutive}
		}
	}
	if g.consecutive > 0 {
		return ActivationState{Phase: Rising, Count: g.consecutive}
	}
	return ActivationState{Phase: Idle}
}

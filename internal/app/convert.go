package app

import (
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/conversation"
	"github.com/MrWong99/vigil/internal/wake"
)

// TuningFromConfig maps the session section onto conversation tuning. Pauses
// the config does not expose keep their defaults.
func TuningFromConfig(sc config.SessionConfig) conversation.Tuning {
	t := conversation.DefaultTuning()
	if sc.ListenTimeout > 0 {
		t.ListenTimeout = sc.ListenTimeout
	}
	if sc.UnclearBudget > 0 {
		t.UnclearBudget = sc.UnclearBudget
	}
	if sc.SilenceBudget > 0 {
		t.SilenceBudget = sc.SilenceBudget
	}
	if sc.ErrorBudget > 0 {
		t.ErrorBudget = sc.ErrorBudget
	}
	if sc.PostSpeechDelay > 0 {
		t.PostSpeechDelay = sc.PostSpeechDelay
	}
	if sc.Acknowledgement != "" {
		t.Acknowledgement = sc.Acknowledgement
	}
	if len(sc.ExitPhrases) > 0 {
		t.ExitPhrases = append([]string(nil), sc.ExitPhrases...)
	}
	return t
}

// WakeFromConfig maps the wake section onto detector config. Zero gate
// fields fall back to wake.DefaultGateConfig inside the detector.
func WakeFromConfig(wc config.WakeConfig) wake.Config {
	return wake.Config{
		Sensitivity:       wc.Sensitivity,
		CalibrationFrames: wc.CalibrationFrames,
		Gate: wake.GateConfig{
			RiseRatio:    wc.RiseRatio,
			ConfirmRatio: wc.ConfirmRatio,
			Required:     wc.Required,
			Cooldown:     wc.Cooldown,
		},
	}
}

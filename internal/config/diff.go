package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is set when the wake gate tuning changed. Sensitivity and
	// calibration only apply after a restart.
	WakeChanged bool

	// SessionChanged is set when conversation tuning changed.
	SessionChanged bool

	SpeedChanged bool
	NewSpeed     float64

	// RestartRequired lists changed sections that cannot be applied to a
	// running assistant (e.g., "audio", "providers").
	RestartRequired []string
}

// Changed reports whether any field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WakeChanged || d.SessionChanged || d.SpeedChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ow, nw := old.Wake, new.Wake
	if ow.RiseRatio != nw.RiseRatio || ow.ConfirmRatio != nw.ConfirmRatio ||
		ow.Required != nw.Required || ow.Cooldown != nw.Cooldown {
		d.WakeChanged = true
	}
	if ow.Sensitivity != nw.Sensitivity || ow.CalibrationFrames != nw.CalibrationFrames {
		d.RestartRequired = append(d.RestartRequired, "wake")
	}

	if !sessionEqual(old.Session, new.Session) {
		d.SessionChanged = true
	}
	if old.Session.Interrupt != new.Session.Interrupt {
		d.RestartRequired = append(d.RestartRequired, "session.interrupt")
	}

	if old.Speech.Speed != new.Speech.Speed {
		d.SpeedChanged = true
		d.NewSpeed = new.Speech.Speed
	}
	oldSpeech, newSpeech := old.Speech, new.Speech
	oldSpeech.Speed, newSpeech.Speed = 0, 0
	if oldSpeech != newSpeech {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !listenEqual(old.Listen, new.Listen) {
		d.RestartRequired = append(d.RestartRequired, "listen")
	}
	if old.Respond != new.Respond {
		d.RestartRequired = append(d.RestartRequired, "respond")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	return d
}

func sessionEqual(a, b SessionConfig) bool {
	return a.ListenTimeout == b.ListenTimeout &&
		a.UnclearBudget == b.UnclearBudget &&
		a.SilenceBudget == b.SilenceBudget &&
		a.ErrorBudget == b.ErrorBudget &&
		a.PostSpeechDelay == b.PostSpeechDelay &&
		a.Acknowledgement == b.Acknowledgement &&
		slices.Equal(a.ExitPhrases, b.ExitPhrases)
}

func listenEqual(a, b ListenConfig) bool {
	kwA, kwB := a.Keywords, b.Keywords
	a.Keywords, b.Keywords = nil, nil
	return a == b && slices.Equal(kwA, kwB)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.STT, b.STT) &&
		entryEqual(a.TTS, b.TTS) && entryEqual(a.VAD, b.VAD) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual) &&
		slices.EqualFunc(a.TTSFallbacks, b.TTSFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && reflect.DeepEqual(a.Options, b.Options)
}

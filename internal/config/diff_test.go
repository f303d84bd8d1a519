package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vigil/internal/config"
)

func loadSample(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(loadSample(t), loadSample(t))
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level should apply live, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "gate cooldown",
			mutate: func(c *config.Config) { c.Wake.Cooldown = 5 * time.Second },
			check:  func(d config.ConfigDiff) bool { return d.WakeChanged },
		},
		{
			name:   "gate required",
			mutate: func(c *config.Config) { c.Wake.Required = 7 },
			check:  func(d config.ConfigDiff) bool { return d.WakeChanged },
		},
		{
			name:   "listen timeout",
			mutate: func(c *config.Config) { c.Session.ListenTimeout = time.Second },
			check:  func(d config.ConfigDiff) bool { return d.SessionChanged },
		},
		{
			name:   "exit phrases",
			mutate: func(c *config.Config) { c.Session.ExitPhrases = append(c.Session.ExitPhrases, "sleep now") },
			check:  func(d config.ConfigDiff) bool { return d.SessionChanged },
		},
		{
			name:   "speed",
			mutate: func(c *config.Config) { c.Speech.Speed = 1.5 },
			check:  func(d config.ConfigDiff) bool { return d.SpeedChanged && d.NewSpeed == 1.5 },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := loadSample(t), loadSample(t)
			tt.mutate(new)
			d := config.Diff(old, new)
			if !tt.check(d) {
				t.Errorf("change not reported: %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		section string
		mutate  func(*config.Config)
	}{
		{"wake", func(c *config.Config) { c.Wake.Sensitivity = 0.9 }},
		{"session.interrupt", func(c *config.Config) { c.Session.Interrupt = config.InterruptStdin }},
		{"speech", func(c *config.Config) { c.Speech.Voice = "other" }},
		{"server", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"server", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} }},
		{"audio", func(c *config.Config) { c.Audio.OutputDevice = "HDMI" }},
		{"listen", func(c *config.Config) { c.Listen.Keywords = []string{"spotify"} }},
		{"respond", func(c *config.Config) { c.Respond.SystemPrompt = "Be terse." }},
		{"providers", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" }},
		{"providers", func(c *config.Config) { c.Providers.STT.Options["threads"] = 8 }},
		{"providers", func(c *config.Config) { c.Providers.TTSFallbacks = nil }},
		{"history", func(c *config.Config) { c.History.MaxTurns = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			t.Parallel()
			old, new := loadSample(t), loadSample(t)
			tt.mutate(new)
			d := config.Diff(old, new)
			if !slices.Contains(d.RestartRequired, tt.section) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tt.section)
			}
			if !d.Changed() {
				t.Error("Changed() = false")
			}
		})
	}
}

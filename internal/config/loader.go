package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"deepgram", "whisper", "whisper-native"},
	"tts":   {"elevenlabs", "coqui"},
	"vad":   {"energy"},
	"audio": {"malgo", "portaudio"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = "127.0.0.1:8080"
	DefaultAudioBackend      = "malgo"
	DefaultSampleRate        = 16000
	DefaultFrameSamples      = 1024
	DefaultSensitivity       = 0.3
	DefaultCalibrationFrames = 10
	DefaultVAD               = "energy"
	DefaultSpeechThreshold   = 0.015
	DefaultSilenceThreshold  = 0.008
	DefaultMinSpeech         = 60 * time.Millisecond
	DefaultEndSilence        = 800 * time.Millisecond
	DefaultLanguage          = "en"
	DefaultListenTimeout     = 5 * time.Second
	DefaultPostSpeechDelay   = 500 * time.Millisecond
	DefaultAcknowledgement   = "Yes?"
	DefaultSpeed             = 1.2
	DefaultMaxTurns          = 10
)

// envRef matches ${NAME} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults and validates the result. Unset variables
// expand to the empty string. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a usable default. Fields
// whose zero value is meaningful (server.tls, history.postgres_dsn,
// speech.archive_dir) are left alone, and so are knobs whose default is owned
// by the component that consumes them.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Audio.Backend, DefaultAudioBackend)
	setDefault(&cfg.Audio.SampleRate, DefaultSampleRate)
	setDefault(&cfg.Audio.FrameSamples, DefaultFrameSamples)

	setDefault(&cfg.Wake.Sensitivity, DefaultSensitivity)
	setDefault(&cfg.Wake.CalibrationFrames, DefaultCalibrationFrames)

	setDefault(&cfg.Listen.SpeechThreshold, DefaultSpeechThreshold)
	setDefault(&cfg.Listen.SilenceThreshold, DefaultSilenceThreshold)
	setDefault(&cfg.Listen.MinSpeech, DefaultMinSpeech)
	setDefault(&cfg.Listen.EndSilence, DefaultEndSilence)
	setDefault(&cfg.Listen.Language, DefaultLanguage)

	setDefault(&cfg.Session.ListenTimeout, DefaultListenTimeout)
	setDefault(&cfg.Session.UnclearBudget, 2)
	setDefault(&cfg.Session.SilenceBudget, 1)
	setDefault(&cfg.Session.PostSpeechDelay, DefaultPostSpeechDelay)
	setDefault(&cfg.Session.Acknowledgement, DefaultAcknowledgement)
	setDefault(&cfg.Session.Interrupt, InterruptStdin)

	setDefault(&cfg.Speech.Speed, DefaultSpeed)

	setDefault(&cfg.Providers.VAD.Name, DefaultVAD)

	setDefault(&cfg.History.MaxTurns, DefaultMaxTurns)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must be positive", cfg.Audio.FrameSamples))
	}

	// Wake
	if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wake.sensitivity %.2f is out of range [0, 1]", cfg.Wake.Sensitivity))
	}
	if cfg.Wake.RiseRatio < 0 || cfg.Wake.ConfirmRatio < 0 {
		errs = append(errs, errors.New("wake ratios must not be negative"))
	}
	if cfg.Wake.RiseRatio > 0 && cfg.Wake.ConfirmRatio > cfg.Wake.RiseRatio {
		errs = append(errs, fmt.Errorf("wake.confirm_ratio %.2f exceeds wake.rise_ratio %.2f", cfg.Wake.ConfirmRatio, cfg.Wake.RiseRatio))
	}
	if cfg.Wake.Required < 0 || cfg.Wake.Cooldown < 0 {
		errs = append(errs, errors.New("wake.required and wake.cooldown must not be negative"))
	}

	// Listen
	if cfg.Listen.SpeechThreshold < 0 || cfg.Listen.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("listen.speech_threshold %.3f is out of range (0, 1]", cfg.Listen.SpeechThreshold))
	}
	if cfg.Listen.SilenceThreshold < 0 || cfg.Listen.SilenceThreshold > cfg.Listen.SpeechThreshold {
		errs = append(errs, fmt.Errorf("listen.silence_threshold %.3f must be in [0, speech_threshold]", cfg.Listen.SilenceThreshold))
	}
	if cfg.Listen.PhraseLimit < 0 || cfg.Listen.Preroll < 0 || cfg.Listen.MinSpeech < 0 || cfg.Listen.EndSilence < 0 {
		errs = append(errs, errors.New("listen durations must not be negative"))
	}

	// Session
	if cfg.Session.ListenTimeout < 0 || cfg.Session.PostSpeechDelay < 0 {
		errs = append(errs, errors.New("session durations must not be negative"))
	}
	if cfg.Session.UnclearBudget < 0 || cfg.Session.SilenceBudget < 0 || cfg.Session.ErrorBudget < 0 {
		errs = append(errs, errors.New("session budgets must not be negative"))
	}
	if cfg.Session.Interrupt != "" && !cfg.Session.Interrupt.IsValid() {
		errs = append(errs, fmt.Errorf("session.interrupt %q is invalid; valid values: stdin, http", cfg.Session.Interrupt))
	}

	// Speech
	if cfg.Speech.Speed != 0 && (cfg.Speech.Speed < 0.5 || cfg.Speech.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("speech.speed %.2f is out of range [0.5, 2.0]", cfg.Speech.Speed))
	}
	if cfg.Speech.QueueSize < 0 || cfg.Speech.BypassChars < 0 || cfg.Speech.ArchiveKeep < 0 {
		errs = append(errs, errors.New("speech sizes must not be negative"))
	}
	if cfg.Speech.PopTimeout < 0 || cfg.Speech.Chunk < 0 {
		errs = append(errs, errors.New("speech durations must not be negative"))
	}

	// Respond
	if cfg.Respond.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("respond.max_tokens %d must not be negative", cfg.Respond.MaxTokens))
	}
	if cfg.Respond.Temperature < 0 || cfg.Respond.Temperature > 2 {
		errs = append(errs, fmt.Errorf("respond.temperature %.2f is out of range [0, 2]", cfg.Respond.Temperature))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; only built-in replies will be available")
	}
	if cfg.Respond.ClassifyIntents && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("respond.classify_intents requires providers.llm"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Audio.Backend)
	errs = append(errs, validateFallbacks("llm", cfg.Providers.LLMFallbacks)...)
	errs = append(errs, validateFallbacks("stt", cfg.Providers.STTFallbacks)...)
	errs = append(errs, validateFallbacks("tts", cfg.Providers.TTSFallbacks)...)

	// History
	if cfg.History.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("history.max_turns %d must not be negative", cfg.History.MaxTurns))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; turns are kept in memory only")
	}

	return errors.Join(errs...)
}

func validateFallbacks(kind string, entries []ProviderEntry) []error {
	var errs []error
	for i, e := range entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vigil/internal/app"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/resilience"
	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/audio/malgo"
	"github.com/MrWong99/vigil/pkg/audio/portaudio"
	"github.com/MrWong99/vigil/pkg/provider/llm"
	"github.com/MrWong99/vigil/pkg/provider/llm/anyllm"
	"github.com/MrWong99/vigil/pkg/provider/llm/openai"
	"github.com/MrWong99/vigil/pkg/provider/stt"
	"github.com/MrWong99/vigil/pkg/provider/stt/deepgram"
	"github.com/MrWong99/vigil/pkg/provider/stt/whisper"
	"github.com/MrWong99/vigil/pkg/provider/tts"
	"github.com/MrWong99/vigil/pkg/provider/tts/coqui"
	"github.com/MrWong99/vigil/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/vigil/pkg/provider/vad"
	"github.com/MrWong99/vigil/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining vendors go through any-llm: optional APIKey + optional
	// BaseURL. Local servers (ollama, llamacpp, llamafile) need no key.
	for _, vendor := range []string{
		"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.IntOption("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.StringOption("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := entry.StringOption("voice_id", ""); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := entry.IntOption("sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.Engine{}, nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("malgo", func() (audio.Backend, error) {
		b, err := malgo.NewBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	reg.RegisterAudio("portaudio", func() (audio.Backend, error) {
		b, err := portaudio.NewBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	})

	for _, kind := range []string{"llm", "stt", "tts", "vad", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates every configured provider. LLM, STT and TTS are
// wrapped in fallback groups so each backend gets a circuit breaker, and the
// groups are published on the control API and as readiness checks.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, []app.Option, error) {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	var (
		p    app.Providers
		opts []app.Option
	)
	published := func(kind string, status func() []resilience.EntryStatus, check func(context.Context) error) {
		opts = append(opts,
			app.WithProviderStatus(kind, status),
			app.WithReadinessCheck(health.Checker{Name: kind, Check: check}),
		)
	}

	// ── LLM (optional) ────────────────────────────────────────────────────────
	if cfg.Providers.LLM.Name != "" {
		primary, err := create("llm", cfg.Providers.LLM, reg.CreateLLM)
		if err != nil {
			return nil, nil, err
		}
		fb := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, fbCfg)
		for _, e := range cfg.Providers.LLMFallbacks {
			alt, err := create("llm fallback", e, reg.CreateLLM)
			if err != nil {
				return nil, nil, err
			}
			fb.AddFallback(e.Name, alt)
		}
		p.LLM = fb
		published("llm", fb.Status, fb.Check)
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	sttPrimary, err := create("stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, nil, err
	}
	sttFB := resilience.NewSTTFallback(sttPrimary, cfg.Providers.STT.Name, fbCfg)
	for _, e := range cfg.Providers.STTFallbacks {
		alt, err := create("stt fallback", e, reg.CreateSTT)
		if err != nil {
			return nil, nil, err
		}
		sttFB.AddFallback(e.Name, alt)
	}
	p.STT = sttFB
	published("stt", sttFB.Status, sttFB.Check)

	// ── TTS ───────────────────────────────────────────────────────────────────
	ttsPrimary, err := create("tts", cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, nil, err
	}
	ttsFB := resilience.NewTTSFallback(ttsPrimary, cfg.Providers.TTS.Name, fbCfg)
	for _, e := range cfg.Providers.TTSFallbacks {
		alt, err := create("tts fallback", e, reg.CreateTTS)
		if err != nil {
			return nil, nil, err
		}
		ttsFB.AddFallback(e.Name, alt)
	}
	p.TTS = ttsFB
	published("tts", ttsFB.Status, ttsFB.Check)

	// ── VAD ───────────────────────────────────────────────────────────────────
	if p.VAD, err = create("vad", cfg.Providers.VAD, reg.CreateVAD); err != nil {
		return nil, nil, err
	}

	// ── Audio ─────────────────────────────────────────────────────────────────
	if p.Audio, err = reg.CreateAudio(cfg.Audio.Backend); err != nil {
		return nil, nil, fmt.Errorf("audio backend %q: %w", cfg.Audio.Backend, err)
	}
	return &p, opts, nil
}

// create instantiates one provider, turning an unregistered name into a
// readable error.
func create[T any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (T, error)) (T, error) {
	v, err := factory(entry)
	if err != nil {
		var zero T
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return zero, fmt.Errorf("%s provider %q is not built in: %w", kind, entry.Name, err)
		}
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider ready", "kind", kind, "name", entry.Name, "model", entry.Model)
	return v, nil
}

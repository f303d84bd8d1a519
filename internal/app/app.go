// Package app wires the Vigil subsystems into a running assistant.
//
// New opens the audio devices and connects wake detection, listening,
// responding and speech output to a conversation session. Run captures and
// converses until the context is cancelled, and Shutdown releases the devices
// and stores in reverse order.
//
// Tests inject a scripted microphone, a mock speaker and an in-memory history
// through the functional options; anything not injected is created from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/conversation"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/internal/listen"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/playback"
	"github.com/MrWong99/vigil/internal/resilience"
	"github.com/MrWong99/vigil/internal/respond"
	"github.com/MrWong99/vigil/internal/speech"
	"github.com/MrWong99/vigil/internal/wake"
	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/llm"
	"github.com/MrWong99/vigil/pkg/provider/stt"
	"github.com/MrWong99/vigil/pkg/provider/tts"
	"github.com/MrWong99/vigil/pkg/provider/vad"
)

// Providers holds one value per provider slot. LLM may be nil; the assistant
// then answers only the intents it handles itself.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Provider
	VAD   vad.Engine
	Audio audio.Backend
}

// listenBuffer is the frame queue of a listening subscription.
const listenBuffer = 64

// App owns the lifetime of every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	fs        afero.Fs

	source      audio.Source
	output      audio.Output
	history     history.Store
	interruptIn io.Reader
	status      map[string]func() []resilience.EntryStatus
	checks      []health.Checker

	tap      *audio.Tap
	detector *wake.Detector
	waker    *conversation.TapWaker
	player   *playback.Controller
	speech   *speech.Pipeline
	router   *respond.Router
	session  *conversation.Session
	trigger  *conversation.Trigger

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithSource injects the microphone instead of opening one on the backend.
func WithSource(src audio.Source) Option {
	return func(a *App) { a.source = src }
}

// WithOutput injects the speaker instead of opening one on the backend.
func WithOutput(out audio.Output) Option {
	return func(a *App) { a.output = out }
}

// WithHistory injects a history store instead of creating one from config.
func WithHistory(h history.Store) Option {
	return func(a *App) { a.history = h }
}

// WithInterruptReader turns every line read from r into an interrupt. It is
// used when session.interrupt is "stdin".
func WithInterruptReader(r io.Reader) Option {
	return func(a *App) { a.interruptIn = r }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithFs sets the filesystem for the clip archive. Default: the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithProviderStatus publishes the breaker states of a fallback group under
// kind ("llm", "stt", "tts") on the control API.
func WithProviderStatus(kind string, fn func() []resilience.EntryStatus) Option {
	return func(a *App) { a.status[kind] = fn }
}

// WithReadinessCheck adds a readiness probe served on /readyz.
func WithReadinessCheck(c health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, c) }
}

// New creates an App. ctx bounds initialisation and the lifetime of the
// stdin interrupt reader.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		status:    make(map[string]func() []resilience.EntryStatus),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if providers == nil || providers.STT == nil || providers.TTS == nil || providers.VAD == nil {
		return nil, errors.New("app: stt, tts and vad providers are required")
	}

	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	if err := a.initHistory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	a.initWake()
	listener := a.newListener()
	if err := a.initSpeech(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init speech: %w", err)
	}
	responder := a.newResponder()

	a.trigger = conversation.NewTrigger()
	interrupts := []conversation.InterruptSource{a.trigger}
	if a.interruptIn != nil && cfg.Session.Interrupt == config.InterruptStdin {
		interrupts = append(interrupts, conversation.NewLineReader(ctx, a.interruptIn))
	}

	a.session = conversation.New(a.waker, listener, responder, a.speech,
		conversation.WithTuning(TuningFromConfig(cfg.Session)),
		conversation.WithHistory(a.history),
		conversation.WithInterrupts(interrupts...),
		conversation.WithPlayer(a.player),
		conversation.WithMetrics(a.metrics),
	)
	a.session.OnStateChange(func(old, new conversation.State) {
		slog.Debug("app: state change", "from", old, "to", new)
	})
	return a, nil
}

func (a *App) initAudio() error {
	acfg := a.cfg.Audio
	if a.source == nil || a.output == nil {
		if a.providers.Audio == nil {
			return errors.New("no audio backend configured")
		}
		a.closers = append(a.closers, a.providers.Audio.Close)
	}
	if a.source == nil {
		src, err := a.providers.Audio.OpenCapture(acfg.InputDevice, acfg.SampleRate, acfg.FrameSamples)
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		a.source = src
	}
	// Tap.Run also closes the source; Close is idempotent.
	a.closers = append(a.closers, a.source.Close)

	if a.output == nil {
		out, err := a.providers.Audio.OpenPlayback(acfg.OutputDevice, acfg.SampleRate)
		if err != nil {
			return fmt.Errorf("open playback: %w", err)
		}
		a.output = out
	}
	a.closers = append(a.closers, a.output.Close)
	return nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	hcfg := a.cfg.History
	if hcfg.PostgresDSN == "" {
		a.history = history.NewMemoryStore(hcfg.MaxTurns)
		return nil
	}
	store, err := history.NewPostgresStore(ctx, hcfg.PostgresDSN, hcfg.MaxTurns)
	if err != nil {
		return err
	}
	a.history = store
	a.checks = append(a.checks, health.Checker{Name: "history", Check: store.Ping})
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	slog.Info("app: persistent history enabled")
	return nil
}

func (a *App) initWake() {
	a.detector = wake.NewDetector(WakeFromConfig(a.cfg.Wake),
		wake.WithSoundDetected(func(ratio float64) {
			a.metrics.SoundDetections.Add(context.Background(), 1)
			slog.Debug("app: sound detected", "ratio", ratio)
		}),
	)
	a.tap = audio.NewTap(a.source)
	a.waker = conversation.NewTapWaker(a.tap, a.detector)
}

func (a *App) newListener() *listen.Listener {
	lcfg := a.cfg.Listen
	open := func() (audio.Source, error) {
		sub, err := a.tap.Subscribe(listenBuffer)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	return listen.New(open, a.providers.VAD, a.providers.STT,
		listen.Config{
			PhraseLimit: lcfg.PhraseLimit,
			Preroll:     lcfg.Preroll,
			VAD: vad.Config{
				SampleRate:       a.cfg.Audio.SampleRate,
				SpeechThreshold:  lcfg.SpeechThreshold,
				SilenceThreshold: lcfg.SilenceThreshold,
				MinSpeech:        lcfg.MinSpeech,
				Hangover:         lcfg.EndSilence,
			},
			STT: stt.Config{
				Language: lcfg.Language,
				Keywords: lcfg.Keywords,
			},
		},
		listen.WithMetrics(a.metrics),
		listen.WithProviderName(a.cfg.Providers.STT.Name),
	)
}

func (a *App) initSpeech() error {
	scfg := a.cfg.Speech
	a.player = playback.New(a.output,
		playback.WithSpeed(scfg.Speed),
		playback.WithChunk(scfg.Chunk),
		playback.WithMetrics(a.metrics),
	)

	voice := tts.Voice{ID: scfg.Voice, Provider: a.cfg.Providers.TTS.Name}
	synth := speech.SynthesizerFunc(func(ctx context.Context, text string) (audio.Clip, error) {
		return a.providers.TTS.Synthesize(ctx, text, voice)
	})

	opts := []speech.Option{
		speech.WithQueueSize(scfg.QueueSize),
		speech.WithPopTimeout(scfg.PopTimeout),
		speech.WithBypassChars(scfg.BypassChars),
		speech.WithMetrics(a.metrics),
	}
	if scfg.ArchiveDir != "" {
		archive, err := speech.NewClipArchive(a.fs, scfg.ArchiveDir, scfg.ArchiveKeep)
		if err != nil {
			return err
		}
		opts = append(opts, speech.WithArchive(archive))
	}
	a.speech = speech.NewPipeline(synth, a.player, opts...)
	return nil
}

func (a *App) newResponder() respond.Responder {
	rcfg := a.cfg.Respond
	var fallback respond.Responder
	if a.providers.LLM != nil {
		fallback = respond.NewLLM(a.providers.LLM,
			respond.WithSystemPrompt(rcfg.SystemPrompt),
			respond.WithMaxTokens(rcfg.MaxTokens),
			respond.WithTemperature(rcfg.Temperature),
			respond.WithMetrics(a.metrics),
			respond.WithProviderName(a.cfg.Providers.LLM.Name),
		)
	}

	opts := []respond.RouterOption{
		respond.WithHandler(respond.Exit, respond.EndConversation(conversation.Farewell)),
		respond.WithUnsupported(respond.LaunchApp, respond.CloseApp, respond.ExecuteCommand, respond.InstallPackage),
	}
	if rcfg.ClassifyIntents && a.providers.LLM != nil {
		opts = append(opts, respond.WithClassifier(a.providers.LLM))
	}
	a.router = respond.NewRouter(fallback, opts...)
	return a.router
}

// Run captures audio and converses until ctx is cancelled. Capture failures
// end Run with an error; cancellation returns nil.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.tap.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		if err := a.waker.Calibrate(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			slog.Warn("app: calibration failed, using default threshold", "err", err)
		}
		slog.Info("app: listening for wake sounds",
			"threshold", a.detector.Status().Threshold.Trigger,
			"sensitivity", a.cfg.Wake.Sensitivity,
		)
		err := a.session.Run(gctx)
		if errors.Is(err, conversation.ErrShutdownRequested) {
			return nil
		}
		return err
	})
	return g.Wait()
}

// ApplyConfig pushes the hot-reloadable parts of a reloaded config into the
// running subsystems. Sections listed in d.RestartRequired are left alone.
func (a *App) ApplyConfig(cfg *config.Config, d config.ConfigDiff) {
	if d.WakeChanged {
		a.detector.SetGateConfig(WakeFromConfig(cfg.Wake).Gate)
	}
	if d.SessionChanged {
		a.session.SetTuning(TuningFromConfig(cfg.Session))
	}
	if d.SpeedChanged {
		a.player.SetSpeed(d.NewSpeed)
	}
}

// Session returns the conversation session.
func (a *App) Session() *conversation.Session { return a.session }

// Checks returns the readiness probes collected during New and from options.
func (a *App) Checks() []health.Checker {
	return append([]health.Checker(nil), a.checks...)
}

// Shutdown releases devices and stores in reverse order. Remaining closers
// are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		if a.speech != nil {
			a.speech.Stop()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

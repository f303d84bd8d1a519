// Command vigil is the always-on voice assistant: it sleeps until a loud
// sound wakes it, listens to one request at a time, answers out loud and goes
// back to sleep when the conversation ends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vigil/internal/app"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "vigil.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	logJSON := flag.Bool("log-json", false, "write logs as JSON")
	listDevices := flag.Bool("list-devices", false, "print the audio devices of the configured backend and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("vigil", version)
		return 0
	}

	// API keys usually live in .env and are referenced as ${NAME} in the config.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "vigil: %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vigil: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level, *logJSON))

	slog.Info("vigil starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if *listDevices {
		return printDevices(reg, cfg.Audio.Backend)
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vigil", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, opts, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	opts = append(opts, app.WithMetrics(metrics))
	if cfg.Session.Interrupt == config.InterruptStdin {
		opts = append(opts, app.WithInterruptReader(os.Stdin))
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Control server ────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.WithVersion(version),
		health.WithState(func() string { return application.Session().State().String() }),
		health.WithChecks(application.Checks()...),
	).Register(mux)
	mux.Handle("GET /metrics", tel.MetricsHandler)
	application.RegisterControl(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
		}
		application.ApplyConfig(next, d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A session that ends on its own also stops the control server.
		defer stop()
		return application.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("control server listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("vigil ready, make a sound to wake it (Ctrl+C to quit)")
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// printDevices lists the capture and playback devices of the named backend.
func printDevices(reg *config.Registry, backendName string) int {
	backend, err := reg.CreateAudio(backendName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		return 1
	}
	defer backend.Close()

	for _, capture := range []bool{true, false} {
		kind := "playback"
		if capture {
			kind = "capture"
		}
		names, err := backend.Devices(capture)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vigil: list %s devices: %v\n", kind, err)
			return 1
		}
		fmt.Printf("%s devices (%s):\n", kind, backend.Name())
		for _, n := range names {
			fmt.Printf("  %s\n", n)
		}
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Vigil, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Audio", cfg.Audio.Backend, "")
	fallbacks := len(cfg.Providers.LLMFallbacks) + len(cfg.Providers.STTFallbacks) + len(cfg.Providers.TTSFallbacks)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", fallbacks)
	history := "memory"
	if cfg.History.PostgresDSN != "" {
		history = "postgres"
	}
	fmt.Printf("║  History         : %-19s ║\n", history)
	fmt.Printf("║  Sensitivity     : %-19.2f ║\n", cfg.Wake.Sensitivity)
	fmt.Printf("║  Interrupt       : %-19s ║\n", cfg.Session.Interrupt)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

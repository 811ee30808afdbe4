// Command cockpit is the main entry point for the discovery-call cockpit server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cockpit/internal/app"
	"github.com/MrWong99/cockpit/internal/config"
	"github.com/MrWong99/cockpit/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "configs/cockpit.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	watch := flag.Duration("watch", config.DefaultWatchInterval, "config reload polling interval (0 disables)")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "cockpit: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cockpit: config file %q not found, copy configs/cockpit.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cockpit: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("cockpit starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registry:       promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers := buildProviders(cfg, reg)

	printStartupSummary(cfg, providers)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers, app.WithPrometheusRegistry(promReg))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(gctx)
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch > 0 {
		w, err := config.NewWatcher(*configPath, func(d config.ConfigDiff, _ *config.Config) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level updated", "log_level", d.NewLogLevel)
			}
			application.ApplyConfig(d)
		}, config.WithInterval(*watch))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providers *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        cockpit: startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	for _, fb := range cfg.Providers.LLMFallbacks {
		printProvider("LLM fallback", fb.Name, fb.Model)
	}
	fmt.Printf("║  LLM backends    : %-19d ║\n", len(providers.LLM))
	extraction := "enabled"
	if !cfg.Extraction.IsEnabled() || len(providers.LLM) == 0 {
		extraction = "lexical only"
	}
	fmt.Printf("║  Extraction      : %-19s ║\n", extraction)
	fmt.Printf("║  Debounce        : %-19s ║\n", cfg.Session.Debounce)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

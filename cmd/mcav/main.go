// Command mcav is the main entry point for the mcav visualization server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/mcav/internal/app"
	"github.com/MrWong99/mcav/internal/auth"
	"github.com/MrWong99/mcav/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	requireAuth := flag.Bool("require-auth", false, "reject DJs without valid credentials (overrides auth.require)")
	noMinecraft := flag.Bool("no-minecraft", false, "run without a renderer connection (overrides renderer.disabled)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcav: %v\n", err)
		return 1
	}
	if *requireAuth {
		cfg.Auth.Require = true
	}
	if *noMinecraft {
		cfg.Renderer.Disabled = true
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mcav starting",
		"version", app.Version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Credential hygiene ────────────────────────────────────────────────────
	// With auth required, refuse to start on plaintext secrets rather than
	// silently serving them.
	if cfg.Auth.Require {
		store, err := auth.Load(cfg.Auth.Path)
		if err != nil {
			slog.Error("auth required but credential file unreadable", "path", cfg.Auth.Path, "err", err)
			return 1
		}
		if err := store.CheckHashed(); err != nil {
			slog.Error("credential file contains plaintext secrets", "err", err)
			return 1
		}
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file; a missing file falls back to defaults
// so the server can start with zero setup.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "mcav: config file %q not found — using defaults (copy configs/example.yaml to customise)\n", path)
		return config.Default(), nil
	}
	return cfg, err
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║           mcav — startup summary          ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	printRow("DJ listen", cfg.Server.DJListenAddr)
	printRow("Browser listen", cfg.Server.BrowserListenAddr)
	printRow("HTTP listen", cfg.Server.HTTPListenAddr)
	printRow("Metrics listen", cfg.Server.MetricsListenAddr)
	if cfg.Renderer.Disabled {
		printRow("Renderer", "(disabled)")
	} else {
		printRow("Renderer", cfg.Renderer.URL())
		printRow("Zone", cfg.Renderer.Zone)
	}
	printRow("Pattern", cfg.Viz.Pattern)
	printRow("Preset", cfg.Viz.Preset)
	printRow("Entities", fmt.Sprintf("%d", cfg.Viz.EntityCount))
	if cfg.Auth.Require {
		printRow("Auth", "required")
	} else {
		printRow("Auth", "open (connect codes)")
	}
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 23 {
		value = value[:20] + "…"
	}
	fmt.Printf("║  %-14s : %-23s ║\n", name, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

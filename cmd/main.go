// Package main is the entry point for the OasisDB compact harness.
//
// Usage:
//
//	compact-harness [flags] [log-file]
//
// The optional positional argument is the OasisDB server log to tail
// (default ./oasisdb.log). The harness runs until the stress window
// elapses or it is interrupted, prints a final summary and exits 0.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/oasisdb/compact-harness/external"
	"github.com/oasisdb/compact-harness/internal/config"
	"github.com/oasisdb/compact-harness/internal/harness"
	"github.com/oasisdb/compact-harness/internal/monitoring"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "compact-harness: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Local .env first so ${VAR} expansion in the config file sees it.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("compact-harness", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	baseURL := fs.String("base-url", "", "OasisDB base URL (overrides config)")
	duration := fs.Duration("duration", 0, "stress window length (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.Service.BaseURL = *baseURL
	}
	if *duration > 0 {
		cfg.Stress.Duration = *duration
	}
	if logPath := fs.Arg(0); logPath != "" {
		cfg.Log.Path = logPath
	}
	if *debug {
		cfg.Monitoring.Level = "debug"
	}

	monitoring.Setup(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.Level,
		Format: cfg.Monitoring.Format,
	})

	log.Info().
		Str("base_url", cfg.Service.BaseURL).
		Str("collection", cfg.Service.Collection).
		Str("log_path", cfg.Log.Path).
		Dur("duration", cfg.Stress.Duration).
		Msg("compact harness starting")

	client := external.NewClient(cfg.Service.BaseURL)
	h := harness.New(client, cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = h.Setup(setupCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("compact harness finished")
	return nil
}

// loadConfig returns the file-based config when a path is given,
// otherwise the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// Package monitoring configures the harness's own structured logging
// via zerolog.
//
// Not to be confused with the server log being tailed: this is what the
// harness itself writes about its loops. Console format is the default
// for interactive runs; JSON for CI capture.
package monitoring

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerConfig selects level, format and destination.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "console"
	Output io.Writer
}

// Setup installs the global zerolog logger. Reports go to stdout, so
// harness logs go to stderr by default to keep the two separable.
func Setup(cfg LoggerConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

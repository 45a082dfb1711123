// Package logger builds the zerolog logger every optrader binary starts
// with: JSON to stdout in production, a console writer in dev mode, and a
// package-level logger any library code that can't take a logger as a
// dependency can fall back to via SetGlobalLogger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the knobs every command-line entrypoint exposes for its
// logger: a level string parsed by zerolog itself, and whether stdout
// should render human-readable console output instead of JSON.
type Config struct {
	Level  string // trace, debug, info, warn, error, fatal, panic
	Pretty bool
}

// New builds a logger stamped with timestamp and caller fields. An
// unparseable or empty Level falls back to info rather than failing
// startup over a config typo.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger rebinds the zerolog/log package-level logger, used by
// any third-party dependency that logs through the global logger instead
// of accepting one as a parameter.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

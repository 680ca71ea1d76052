// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/config"
)

// Setup configures the global logger from cfg and returns it. An unknown
// level falls back to info.
func Setup(cfg config.Log, service string) zerolog.Logger {
	return SetupWriter(os.Stderr, cfg, service)
}

// SetupWriter is Setup with an explicit output.
func SetupWriter(w io.Writer, cfg config.Log, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}

package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/giall/hecate/internal/config"
)

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "hecate").Logger()
}

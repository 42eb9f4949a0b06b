// Package logging builds the zerolog loggers shared by the CLI and the
// browser binding.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

const appName = "settle"

// New returns a console logger writing to w. Debug events are only emitted
// when debug is set.
func New(w io.Writer, debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", appName).Logger()
}

// NewJSON returns a structured JSON logger, for machine-read stderr.
func NewJSON(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", appName).Logger()
}

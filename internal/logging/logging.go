// Package logging configures the process-wide zerolog logger, following
// the shape of the teacher's internal/single/monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger for the given level/format pair. format is
// "json" (Loki-friendly, production default) or "console" (human
// readable, development default).
func New(level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout

	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)

	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().
		Timestamp().
		Str("service", "cointegration-pipeline").
		Logger()
}

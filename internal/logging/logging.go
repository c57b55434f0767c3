// Package logging builds the structured zerolog logger shared by both
// binaries, with a panic-recovery helper for goroutine boundaries (hub
// readers/writers, stream fan-out, sweep tickers).
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// New builds a service-scoped logger. level is one of
// debug/info/warn/error; format is json or console.
func New(service, level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// RecoverPanic logs a recovered panic without exiting the process.
// Use in a defer at the top of every long-running goroutine (hub
// client reader/writer, stream fan-out worker, periodic sweeps).
func RecoverPanic(logger zerolog.Logger, goroutine string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}

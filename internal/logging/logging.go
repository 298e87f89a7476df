// Package logging provides the zerolog setup shared by the trading core
// packages (event bus, indicator engine, strategy evaluator, execution
// controller, coordinator, persistence).
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Base returns the process-wide base logger, configured once from
// LOG_LEVEL / LOG_FORMAT environment variables.
func Base() zerolog.Logger {
	once.Do(func() {
		level := parseLevel(os.Getenv("LOG_LEVEL"))
		var w = os.Stderr
		var output zerolog.ConsoleWriter
		if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
			base = zerolog.New(w).Level(level).With().Timestamp().Logger()
			return
		}
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		base = zerolog.New(output).Level(level).With().Timestamp().Logger()
	})
	return base
}

// For returns a logger scoped to a named component, e.g. "eventbus", "sie".
func For(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none":
		return zerolog.Disabled
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

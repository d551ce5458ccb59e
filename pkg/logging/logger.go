// Package logging configures structured logging for starfan using zerolog.
//
// Logs and diagnostics go to stderr so that stdout stays free for the final
// run report.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above. Diagnostics are warnings,
	// so this is the quietest level that still reports failed items.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
//
// Every pipeline task logs from its own goroutine; outputs other than an
// *os.File are wrapped with zerolog.SyncWriter so lines never interleave.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if _, isFile := output.(*os.File); !isFile {
		output = zerolog.SyncWriter(output)
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level; unknown names map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// NewRunLogger creates a component logger tagged with the run id.
func NewRunLogger(component, runID string) zerolog.Logger {
	return log.With().Str("component", component).Str("run_id", runID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Request flow (conditional requests, ETags)
//   - Per-page and per-worker progress
//
// Info: Normal operation events
//   - Run start and finish, state transitions
//   - Progress lines when stderr is not a terminal
//   - 304 Not Modified responses
//
// Warn: Conditions that cost one item or one page, never the run
//   - Diagnostics: page_failed, owner_missing, mark_failed
//   - Rate limit running low
//   - Cache or rate limit Redis errors (the request goes ahead)
//
// Error: Error conditions requiring attention
//   - Rate limit exhausted (further requests are refused)
//   - Configuration errors (fatal before the run starts)
//
// Context Fields:
//   - run_id: one UUID per process run
//   - component: emitting package
//   - kind: diagnostic kind
//   - page: 0-based page index
//   - owner, name: repository identity
//   - status: HTTP status code (0 for transport failures)
//   - cause: response body or error text
//   - resource: rate limit bucket (core, search)

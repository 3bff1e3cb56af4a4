// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
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

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelOff disables logging.
	LevelOff LogLevel = "off"
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
		Level:  LevelWarn,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ParseLevel validates a level name from flags or config files.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off", "disabled", "none":
		return LevelOff, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn, error or off)", s)
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// zerologLevel maps LogLevel to zerolog.Level. Unknown levels map to Info.
func zerologLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: detail for tracing a single interaction
//   - Fetch issuance and application (token, page, filters)
//   - Stale responses discarded
//   - Cache hit/miss, conditional requests
//
// Info: normal operation events
//   - Login and logout
//   - Export progress and completion
//   - 304 Not Modified revalidations
//
// Warn: failures the user sees as a message
//   - List fetch or mutation failures
//   - Retry attempts, rate limit throttling
//   - Cache or session store errors (request continues)
//
// Error: failures that stop a command
//   - Requests failing after retries
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (client, cache, auth, list-controller)
//   - resource: collection name (leads, sellers, appointments)
//   - endpoint: API path
//   - token: fetch supersession token
//   - error_kind: network, server, validation or unknown
//   - error_class: client, server, rate_limit or network
//   - request_id: X-Request-Id of the API call

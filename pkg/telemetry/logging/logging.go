// Package logging sets up the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// levelVar backs the active handler so the level can change on config
// reload without rebuilding loggers.
var levelVar = new(slog.LevelVar)

// Config controls the logger built by Setup.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string

	// Format is "json" or "text".
	Format string

	// Writer is the output writer. Defaults to os.Stdout.
	Writer io.Writer
}

// Setup builds the logger, installs it as slog's default and returns
// it. Call once at startup.
func Setup(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	levelVar.Set(level)

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	case "", "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// SetLevel changes the active level at runtime. Invalid levels are
// ignored.
func SetLevel(level string) {
	parsed, err := ParseLevel(level)
	if err != nil {
		slog.Warn("ignoring invalid log level", "level", level)
		return
	}
	levelVar.Set(parsed)
}

// ParseLevel parses a level string into slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO", "":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// secretKeys are attribute names whose values never reach the log
// output whole.
var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"authorization": true,
	"client_secret": true,
	"jwt_secret":    true,
}

// redactSecrets masks token-bearing attributes, keeping a short prefix
// so entries remain correlatable.
func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	if !secretKeys[a.Key] {
		return a
	}
	val := a.Value.String()
	if len(val) > 8 {
		val = val[:8] + "..."
	} else if val != "" {
		val = "..."
	}
	return slog.String(a.Key, val)
}

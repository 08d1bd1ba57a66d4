package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// globalLevel holds the current log level for dynamic adjustment. Every
// logger built by New shares it.
var globalLevel = new(slog.LevelVar)

// New creates a logger with the given configuration and sets the shared
// level.
func New(cfg Config) *slog.Logger {
	globalLevel.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     globalLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

// SetLevel changes the level of every logger built by New. It is called on
// config reload.
func SetLevel(level string) {
	globalLevel.Set(parseLevel(level))
}

// GetLevel returns the current log level in lower case.
func GetLevel() string {
	return strings.ToLower(globalLevel.Level().String())
}

// ValidLevel reports whether level is a recognized level name.
func ValidLevel(level string) bool {
	_, err := lookupLevel(level)
	return err == nil
}

// parseLevel falls back to info for unknown names; Config.Verify rejects
// them before they get here.
func parseLevel(level string) slog.Level {
	l, err := lookupLevel(level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func lookupLevel(level string) (slog.Level, error) {
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	var l slog.Level
	err := l.UnmarshalText([]byte(level))
	return l, err
}

// Package logging is the thin slog layer the rest of sensord logs through.
//
// Everything funnels into one process-wide *slog.Logger so the output format
// and level are decided exactly once, in main. Packages that want their log
// lines attributable grab a child logger tagged with their component name:
//
//	var log = logging.Component("mailbox")
//	log.Info("mailbox created", "path", path)
//
// Text output is the default; pass jsonFormat to Init for machine-readable
// logs. Log lines go to stderr so sinks that print to stdout (console, plot)
// stay uncontaminated.
package logging

import (
	"log/slog"
	"os"
)

// Logger is the process-wide logger. Nil until Init runs; the package
// functions lazily initialize it at info level so early log calls never
// panic.
var Logger *slog.Logger

// Init sets up the process-wide logger. Debug level also turns on source
// locations.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler installs a custom handler, mainly so tests can capture
// log output.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// With returns a child logger carrying the given attributes on every entry.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With(args...)
}

// Component returns a child logger tagged with a component attribute, the
// conventional way a package identifies its log lines.
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level on the process-wide logger.
func Debug(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Debug(msg, args...)
}

// Info logs at info level on the process-wide logger.
func Info(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Info(msg, args...)
}

// Warn logs at warn level on the process-wide logger.
func Warn(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Warn(msg, args...)
}

// Error logs at error level on the process-wide logger.
func Error(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Error(msg, args...)
}

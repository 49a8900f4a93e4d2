// Package logging configures the process-wide slog default logger, the way
// the teacher's logger.go does: a package-level slog.LevelVar, a
// ConfigureLogging entry point reading an environment variable, and a text
// handler to stdout. Every package in this module logs through log/slog at
// package level (the "log \"log/slog\"" import alias) rather than through
// this package directly; it exists solely to set the default handler once
// at process startup.
package logging

import (
	"log/slog"
	"os"
)

var level = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler and
// configures the log level from the SAKTI_LOG_LEVEL environment variable,
// defaulting to Info.
func ConfigureLogging() {
	level.Set(slog.LevelInfo)

	switch os.Getenv("SAKTI_LOG_LEVEL") {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "WARN":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLevel overrides the level configured by ConfigureLogging, for tests
// or an admin endpoint that wants to raise verbosity at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Package logging assembles the structured slog loggers used across dbvoir.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so import code can tag log
// lines with file paths, triggers, and correlation IDs. A no-op logger is
// available for tests and wiring code that cannot fail.
package logging

// Package logging assembles structured slog loggers and formatting helpers used
// across Vigil services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with session IDs, stages, and correlation IDs. A bounded
// StreamHub retains recent records for the log tail API. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging

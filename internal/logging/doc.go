// Package logging assembles structured slog loggers and formatting helpers used
// across callsight.
//
// It owns the console and JSON handlers, mirrors records into the optional log
// file, and exposes context-aware helpers so stage code can tag log lines with
// session IDs, stage names and correlation IDs. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging

// Package logging assembles structured slog loggers and formatting helpers used
// across tunes.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so backend code can tag log
// lines with record IDs, backend kinds, and correlation IDs. Per-component
// level overrides come from the [logging] config section. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging

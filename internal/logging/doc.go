// Package logging assembles the structured slog loggers used across scribed.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attr helpers plus a no-op logger for tests and
// wiring code that cannot fail. Components obtain their logger through
// WithComponent so every line carries a component tag.
package logging

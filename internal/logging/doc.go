// Package logging assembles the structured slog loggers used across
// flume components.
//
// It owns the console/JSON handlers, centralizes level and output
// plumbing (including rotated daemon log files), and exposes attribute
// helpers so components tag log lines with the same keys everywhere.
// A no-op logger is provided for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup so every
// component emits data with the same shape.
package logging

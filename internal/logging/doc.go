// Package logging assembles structured slog loggers and formatting helpers used
// across gardenpipe.
//
// It owns the console and JSON handlers, fans records out to the terminal and
// the per-run log file, and exposes context-aware helpers so stage code tags
// lines with the session, source file, and stage automatically. Retention
// helpers prune and gzip old run logs.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging

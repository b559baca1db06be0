// Package logs reads the JSON run logs written by the pipeline.
//
// It locates the log for a session (or the newest one), returns the last N
// entries with bounded memory, and can follow a log that is still being
// written. Entries are decoded into a small struct so the CLI can filter by
// level, component or stage and render them compactly.
package logs

// Package notifications publishes pipeline events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether notifications are enabled. Event groups
// (runs, articles, errors) can be switched off individually in config.
package notifications

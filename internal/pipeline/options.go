package pipeline

import (
	"time"

	"gardenpipe/internal/history"
	"gardenpipe/internal/notifications"
)

type runOptions struct {
	history   *history.Store
	notifier  notifications.Service
	sessionID string
	dryRun    bool
	now       func() time.Time
}

// Option configures a Processor or Integrated pipeline.
type Option func(*runOptions)

// WithHistory records runs in the ledger.
func WithHistory(store *history.Store) Option {
	return func(o *runOptions) { o.history = store }
}

// WithNotifier publishes run and article events.
func WithNotifier(n notifications.Service) Option {
	return func(o *runOptions) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithSessionID sets the run identifier. The default is a timestamp.
func WithSessionID(id string) Option {
	return func(o *runOptions) {
		if id != "" {
			o.sessionID = id
		}
	}
}

// WithDryRun runs every model stage but writes, deploys and archives nothing.
func WithDryRun(enabled bool) Option {
	return func(o *runOptions) { o.dryRun = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *runOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) runOptions {
	o := runOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(nil)
	}
	if o.sessionID == "" {
		o.sessionID = o.now().Format("20060102_150405")
	}
	return o
}

package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	itemKey      contextKey = "item"
	stageKey     contextKey = "stage"
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func value(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithSessionID tags ctx with the pipeline run session. Empty ids leave ctx
// unchanged, as do the other helpers below.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func SessionIDFromContext(ctx context.Context) (string, bool) { return value(ctx, sessionIDKey) }

// WithItem tags ctx with the input file being processed.
func WithItem(ctx context.Context, path string) context.Context {
	return withValue(ctx, itemKey, path)
}

func ItemFromContext(ctx context.Context) (string, bool) { return value(ctx, itemKey) }

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return value(ctx, stageKey) }

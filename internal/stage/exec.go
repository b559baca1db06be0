// Package stage wraps pipeline stages with uniform start, completion and
// failure logging plus error notifications.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/services"
)

// Options controls one stage execution.
type Options struct {
	Logger   *slog.Logger
	Notifier notifications.Service
	Name     string
	// Item is the input path when the stage processes a single file.
	Item  string
	Attrs []logging.Attr
}

// Run executes fn with stage-scoped context and logging. The error from fn
// is returned unchanged.
func Run(ctx context.Context, opts Options, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.Name)
	}
	stageCtx := services.WithStage(ctx, opts.Name)
	if opts.Item != "" {
		stageCtx = services.WithItem(stageCtx, opts.Item)
	}
	logger := logging.WithContext(stageCtx, opts.Logger)

	startAttrs := append([]logging.Attr{logging.String(logging.FieldEventType, "stage_start")}, opts.Attrs...)
	logger.Info("stage started", logging.Args(startAttrs...)...)
	started := time.Now()

	if err := fn(stageCtx); err != nil {
		handleFailure(stageCtx, logger, opts, err)
		return err
	}

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) {
	message := strings.TrimSpace(stageErr.Error())
	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, services.Kind(stageErr)),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	if opts.Notifier == nil || ctx.Err() != nil {
		return
	}
	label := opts.Name
	if opts.Item != "" {
		label = fmt.Sprintf("%s (%s)", opts.Name, opts.Item)
	}
	if err := opts.Notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"error":   stageErr,
		"context": label,
	}); err != nil {
		logger.Debug("stage error notification failed", logging.Error(err))
	}
}

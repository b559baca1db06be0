package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gardenpipe/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	Console     io.Writer
	FilePath    string
	SessionID   string
	Development bool
}

// New constructs a slog logger using the provided options. Console output uses
// the configured format; the optional run log file is always JSON.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var handlers []slog.Handler
	if opts.Console != nil {
		switch format {
		case "json":
			handlers = append(handlers, newJSONHandler(opts.Console, levelVar, addSource))
		case "console":
			handlers = append(handlers, newPrettyHandler(opts.Console, levelVar, addSource))
		default:
			return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
		}
	}

	if path := strings.TrimSpace(opts.FilePath); path != "" {
		if err := ensureLogDir(path); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		handlers = append(handlers, newJSONHandler(file, levelVar, addSource))
	}

	logger := slog.New(newFanoutHandler(handlers...))
	if id := strings.TrimSpace(opts.SessionID); id != "" {
		logger = logger.With(slog.String(FieldSessionID, id))
	}
	return logger, nil
}

// RunLogPath returns the per-run log file for a session started at ts.
func RunLogPath(logDir string, ts time.Time) string {
	return filepath.Join(logDir, "gardenpipe-"+ts.Format("20060102-150405")+".log")
}

// NewFromConfig creates a logger for one run. It returns the run log path,
// which is empty when file logging is disabled.
func NewFromConfig(cfg *config.Config, sessionID string, console io.Writer) (*slog.Logger, string, error) {
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "console", Console: console, SessionID: sessionID})
		return logger, "", err
	}
	opts := Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		SessionID: sessionID,
	}
	if cfg.Logging.ConsoleEnabled {
		opts.Console = console
	}
	if cfg.Logging.FileEnabled && cfg.Paths.LogDir != "" {
		opts.FilePath = RunLogPath(cfg.Paths.LogDir, time.Now())
	}
	logger, err := New(opts)
	if err != nil {
		return nil, "", err
	}
	return logger, opts.FilePath, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

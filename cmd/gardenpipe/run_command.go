package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"gardenpipe/internal/config"
	"gardenpipe/internal/deps"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every queued audio, video and text input",
		Long: `Run the batch pipeline: discover inputs, transcribe media, classify and
research notes, generate garden documents, deploy them through git, and
archive the processed inputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireClassification(); err != nil {
				return err
			}

			session, err := beginSession(cmd, ctx, cfg, verbose)
			if err != nil {
				return err
			}
			defer session.close()

			c := newClients(cfg)
			components := newBatchComponents(cfg, c, session.logger)
			defer components.repo.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, "Dry run: no files will be written, committed or archived")
			}
			fmt.Fprintf(out, "Session %s\n", session.id)
			fmt.Fprintf(out, "Inputs: audio=%s video=%s text=%s\n", cfg.Paths.InputAudio, cfg.Paths.InputVideo, cfg.Paths.InputText)
			fmt.Fprintf(out, "Digital garden: %s\n", cfg.Paths.DigitalGarden)

			processor := pipeline.NewProcessor(cfg, components.pipeline(), session.logger,
				pipeline.WithHistory(session.history),
				pipeline.WithNotifier(notifications.NewService(cfg)),
				pipeline.WithSessionID(session.id),
				pipeline.WithDryRun(dryRun),
			)
			stats, runErr := processor.Run(session.ctx)
			if stats != nil {
				renderRunSummary(out, stats)
			}
			if session.logPath != "" {
				fmt.Fprintf(out, "Run log: %s\n", session.logPath)
			}
			return session.exit(runErr)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the model stages without writing, deploying or archiving")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// runSession holds the per-invocation resources shared by run and process.
type runSession struct {
	id      string
	ctx     context.Context
	stop    context.CancelFunc
	logger  *slog.Logger
	logPath string
	history *history.Store
	lock    *flock.Flock
}

func beginSession(cmd *cobra.Command, cc *commandContext, cfg *config.Config, verbose bool) (*runSession, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, errors.New("another gardenpipe run is already in progress")
	}

	id := newSessionID(time.Now())
	logger, logPath, err := cc.newLogger(cmd, id, verbose)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	if removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logTargets(cfg, logPath)...); removed > 0 {
		logger.Debug("old run logs removed", logging.Int("count", removed))
	}

	if disk := deps.CheckDisk(cfg.Paths.DigitalGarden, cfg.Performance.DiskCleanupThresholdGB); !disk.Available {
		logging.WarnWithContext(logger, "low free disk space", "disk_space_low",
			logging.String("path", cfg.Paths.DigitalGarden),
			logging.String("detail", disk.Detail),
			logging.String(logging.FieldErrorHint, "run gardenpipe cleanup or free space on the garden volume"),
		)
	}

	store, err := history.Open(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open run history: %w", err)
	}
	if n, err := store.MarkInterrupted(cmd.Context()); err != nil {
		logging.WarnWithContext(logger, "mark stale runs failed", "history_mark_failed", logging.Error(err))
	} else if n > 0 {
		logger.Info("stale runs marked interrupted", logging.Int("count", int(n)))
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	runCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)

	return &runSession{
		id:      id,
		ctx:     runCtx,
		stop:    stop,
		logger:  logger,
		logPath: logPath,
		history: store,
		lock:    lock,
	}, nil
}

func (s *runSession) close() {
	s.stop()
	if err := s.history.Close(); err != nil {
		logging.WarnWithContext(s.logger, "close run history failed", "history_close_failed", logging.Error(err))
	}
	_ = s.lock.Unlock()
}

// exit maps a run error to the process exit status.
func (s *runSession) exit(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || s.ctx.Err() != nil:
		return &exitError{code: exitInterrupted, msg: "Interrupted"}
	default:
		return err
	}
}

func renderRunSummary(out io.Writer, stats *pipeline.Stats) {
	summary := stats.Summary()
	rows := [][]string{
		{"Files processed", strconv.Itoa(stats.FilesProcessed)},
		{"Successful", strconv.Itoa(stats.FilesSuccessful)},
		{"Failed", strconv.Itoa(stats.FilesFailed)},
		{"Success rate", fmt.Sprintf("%.1f%%", summary.SuccessRate)},
		{"Content generated", strconv.Itoa(summary.ContentGenerated)},
		{"Git commits", strconv.Itoa(summary.GitCommits)},
		{"Duration", fmt.Sprintf("%.1fs", summary.DurationSeconds)},
	}
	if d := stats.Deployment; d != nil {
		if d.BranchName != "" {
			rows = append(rows, []string{"Branch", d.BranchName})
		}
		if d.PRURL != "" {
			rows = append(rows, []string{"Pull request", d.PRURL})
		}
		if d.DeploymentURL != "" {
			rows = append(rows, []string{"Site", d.DeploymentURL})
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Result", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	counts := stats.ErrorCounts()
	if len(counts) == 0 {
		return
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	errorRows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		errorRows = append(errorRows, []string{kind, strconv.Itoa(counts[kind])})
	}
	fmt.Fprintf(out, "\nErrors encountered: %d\n", summary.TotalErrors)
	fmt.Fprintln(out, renderTable([]string{"Error type", "Count"}, errorRows, []columnAlignment{alignLeft, alignRight}))
}

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"gardenpipe/internal/config"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
)

const (
	runLogPattern      = "gardenpipe-*.log"
	archivedLogPattern = "gardenpipe-*.log.gz"
	logArchiveAge      = 24 * time.Hour
)

// logTargets lists the run logs subject to retention. exclude keeps the
// active log file.
func logTargets(cfg *config.Config, exclude ...string) []logging.RetentionTarget {
	return []logging.RetentionTarget{
		{Dir: cfg.Paths.LogDir, Pattern: runLogPattern, Exclude: exclude},
		{Dir: cfg.Paths.LogDir, Pattern: archivedLogPattern},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var historyDays int
	var keepBranches int
	var skipBranches bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Archive and prune old logs, history rows and automation branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, _, err := ctx.newLogger(cmd, "", false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			archived, err := logging.ArchiveLogs(logger, logArchiveAge, logTargets(cfg)[0])
			if err != nil {
				return fmt.Errorf("archive logs: %w", err)
			}
			fmt.Fprintf(out, "Compressed %d run logs\n", archived)

			removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logTargets(cfg)...)
			fmt.Fprintf(out, "Deleted %d log files older than %d days\n", removed, cfg.Logging.RetentionDays)

			pruned, err := pruneHistory(cmd, cfg, historyDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pruned %d history runs older than %d days\n", pruned, historyDays)

			if skipBranches {
				return nil
			}
			deleted, err := cleanupBranches(cmd, cfg, logger, keepBranches)
			if err != nil {
				logging.WarnWithContext(logger, "branch cleanup failed", "branch_cleanup_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check git remote access"),
				)
				fmt.Fprintf(out, "Branch cleanup failed: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "Deleted %d old automation branches\n", deleted)
			return nil
		},
	}

	cmd.Flags().IntVar(&historyDays, "history-days", 90, "Delete finished runs older than this many days (0 keeps all)")
	cmd.Flags().IntVar(&keepBranches, "keep-branches", -1, "Automation branches to keep (default git.max_automation_branches)")
	cmd.Flags().BoolVar(&skipBranches, "skip-branches", false, "Do not touch remote automation branches")
	return cmd
}

func pruneHistory(cmd *cobra.Command, cfg *config.Config, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	store, err := history.Open(cfg)
	if err != nil {
		return 0, fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()
	n, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		return 0, fmt.Errorf("prune run history: %w", err)
	}
	return n, nil
}

func cleanupBranches(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, keep int) (int, error) {
	if keep < 0 {
		keep = cfg.Git.MaxAutomationBranches
	}
	repo := gitops.New(cfg, nil, logger)
	defer repo.Close()
	return repo.CleanupOldBranches(cmd.Context(), keep)
}

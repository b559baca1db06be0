package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gardenpipe/internal/config"
	"gardenpipe/internal/deps"
	"gardenpipe/internal/gitops"
	"gardenpipe/internal/history"
	"gardenpipe/internal/logging"
	"gardenpipe/internal/pipeline"
	"gardenpipe/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, dependencies, inputs and repository state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			writeSection(out, "Configuration", colorize, configLines(ctx.configPath, cfg))
			writeSection(out, "Dependencies", colorize, dependencyLines(cfg, colorize))
			writeSection(out, "Readiness", colorize, preflightLines(preflight.RunAll(cmd.Context(), cfg, false), colorize))
			writeSection(out, "Inputs", colorize, inputLines(cfg, colorize))

			repo := gitops.New(cfg, nil, logging.NewNop())
			defer repo.Close()
			writeSection(out, "Repository", colorize, repositoryLines(repo.RepositoryStatus(cmd.Context()), cfg, colorize))

			writeSection(out, "History", colorize, historyLines(cmd.Context(), cfg))
			return nil
		},
	}
}

func configLines(path string, cfg *config.Config) []string {
	lines := []string{renderStatusLine("Config file", statusInfo, path, false)}
	for _, entry := range cfg.Summary() {
		lines = append(lines, renderStatusLine(entry.Key, statusInfo, entry.Value, false))
	}
	return lines
}

func dependencyLines(cfg *config.Config, colorize bool) []string {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	statuses = append(statuses, deps.CheckDisk(cfg.Paths.DigitalGarden, cfg.Performance.DiskCleanupThresholdGB))
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		detail := s.Detail
		if s.Available && detail == "" {
			detail = s.Command
		}
		lines = append(lines, renderStatusLine(s.Name, checkKind(s.Available, s.Optional), detail, colorize))
	}
	return lines
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, renderStatusLine(r.Name, checkKind(r.Passed, false), r.Detail, colorize))
	}
	return lines
}

func inputLines(cfg *config.Config, colorize bool) []string {
	files, err := pipeline.Discover(cfg)
	if err != nil {
		return []string{renderStatusLine("Discovery", statusError, err.Error(), colorize)}
	}
	counts := map[pipeline.InputType]int{}
	for _, f := range files {
		counts[f.Type]++
	}
	dirs := []struct {
		label string
		kind  pipeline.InputType
		path  string
	}{
		{"Audio", pipeline.InputAudio, cfg.Paths.InputAudio},
		{"Video", pipeline.InputVideo, cfg.Paths.InputVideo},
		{"Text", pipeline.InputText, cfg.Paths.InputText},
	}
	lines := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if _, err := os.Stat(d.path); err != nil {
			lines = append(lines, renderStatusLine(d.label, statusError, "directory not found: "+d.path, colorize))
			continue
		}
		lines = append(lines, renderStatusLine(d.label, statusInfo, fmt.Sprintf("%d files in %s", counts[d.kind], d.path), colorize))
	}
	return lines
}

func repositoryLines(status gitops.RepositoryStatus, cfg *config.Config, colorize bool) []string {
	if !status.GitAvailable {
		detail := status.Error
		if detail == "" {
			detail = "git unavailable"
		}
		return []string{renderStatusLine("Repository", statusError, detail, colorize)}
	}
	lines := []string{
		renderStatusLine("Path", statusInfo, status.Path, colorize),
		renderStatusLine("Branch", statusInfo, status.Branch, colorize),
		renderStatusLine("Uncommitted changes", statusInfo, yesNo(status.HasChanges), colorize),
		renderStatusLine("Auto-push", statusInfo, yesNo(cfg.Git.AutoPush), colorize),
		renderStatusLine("Create PR", statusInfo, yesNo(cfg.Git.CreatePR), colorize),
	}
	if status.RemoteURL != "" {
		lines = append(lines, renderStatusLine("Remote", statusInfo, status.RemoteURL, colorize))
	}
	if c := status.LastCommit; c != nil {
		lines = append(lines, renderStatusLine("Last commit", statusInfo, fmt.Sprintf("%s %s (%s)", c.Hash, c.Message, c.Date), colorize))
	}
	return lines
}

func historyLines(ctx context.Context, cfg *config.Config) []string {
	store, err := history.Open(cfg)
	if err != nil {
		return []string{renderStatusLine("Ledger", statusWarn, err.Error(), false)}
	}
	defer store.Close()
	runs, err := store.List(ctx, 1)
	if err != nil {
		return []string{renderStatusLine("Ledger", statusWarn, err.Error(), false)}
	}
	if len(runs) == 0 {
		return []string{renderStatusLine("Last run", statusInfo, "none", false)}
	}
	last := runs[0]
	detail := fmt.Sprintf("%s %s %s (%d/%d files)", last.SessionID, last.Mode, last.Status,
		last.FilesSuccessful, last.FilesProcessed)
	return []string{renderStatusLine("Last run", statusInfo, strings.TrimSpace(detail), false)}
}

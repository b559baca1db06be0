package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"gardenpipe/internal/config"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/pipeline"
)

type processFlags struct {
	pattern     string
	noThumbnail bool
	noMermaid   bool
	noFactCheck bool
	noGit       bool
	noPush      bool
	build       bool
	force       bool
	dryRun      bool
	verbose     bool
}

// apply returns a copy of cfg with the step toggles overridden.
func (f processFlags) apply(cfg *config.Config) *config.Config {
	copied := *cfg
	p := &copied.Pipeline
	if f.noThumbnail {
		p.EnableThumbnails = false
	}
	if f.noMermaid {
		p.EnableMermaid = false
	}
	if f.noFactCheck {
		p.EnableFactCheck = false
	}
	if f.noGit {
		p.EnableGitCommit = false
		p.EnableGitPush = false
	}
	if f.noPush {
		p.EnableGitPush = false
	}
	if f.build {
		p.EnableSiteBuild = true
	}
	if f.force {
		p.SkipExisting = false
	}
	return &copied
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var flags processFlags

	cmd := &cobra.Command{
		Use:   "process <input>",
		Short: "Turn a text note or directory of notes into published garden articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := base.RequireClassification(); err != nil {
				return err
			}
			cfg := flags.apply(base)

			target, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}

			session, err := beginSession(cmd, ctx, cfg, flags.verbose)
			if err != nil {
				return err
			}
			defer session.close()

			c := newClients(cfg)
			components := newBatchComponents(cfg, c, session.logger)
			defer components.repo.Close()
			integrated := newIntegratedComponents(cfg, c, session.logger, components.repo)

			runner := pipeline.NewIntegrated(cfg, integrated.steps(cfg), session.logger,
				pipeline.WithHistory(session.history),
				pipeline.WithNotifier(notifications.NewService(cfg)),
				pipeline.WithSessionID(session.id),
				pipeline.WithDryRun(flags.dryRun),
			)
			summary, runErr := runner.Run(session.ctx, target, flags.pattern)
			out := cmd.OutOrStdout()
			if summary.Total > 0 {
				renderProcessSummary(out, summary)
			}
			if err := session.exit(runErr); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d of %d files failed", summary.Failed, summary.Total)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.pattern, "pattern", pipeline.DefaultPattern, "Glob for files when the input is a directory")
	cmd.Flags().BoolVar(&flags.noThumbnail, "no-thumbnail", false, "Disable thumbnail generation")
	cmd.Flags().BoolVar(&flags.noMermaid, "no-mermaid", false, "Disable Mermaid diagram generation")
	cmd.Flags().BoolVar(&flags.noFactCheck, "no-fact-check", false, "Disable fact checking")
	cmd.Flags().BoolVar(&flags.noGit, "no-git", false, "Disable git commit and push")
	cmd.Flags().BoolVar(&flags.noPush, "no-push", false, "Commit without pushing")
	cmd.Flags().BoolVar(&flags.build, "build", false, "Build the site after writing each article")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Reprocess notes that already produced an article")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Classify only; report where articles would be written")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func renderProcessSummary(out io.Writer, summary pipeline.BatchSummary) {
	headers := []string{"File", "Status", "Category", "Title", "Thumb", "Diagrams", "Accuracy", "Git", "Time"}
	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		rows = append(rows, []string{
			filepath.Base(r.InputFile),
			resultStatus(r),
			r.Category,
			truncateDisplay(r.Title, titleWidth),
			yesNo(r.ThumbnailGenerated),
			strconv.Itoa(r.MermaidCount),
			accuracyLabel(r),
			gitLabel(r),
			fmt.Sprintf("%.1fs", r.ExecutionTime.Seconds()),
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
	fmt.Fprintf(out, "Total %d  Success %d  Failed %d  Skipped %d  Avg %.1fs\n",
		summary.Total, summary.Success, summary.Failed, summary.Skipped, summary.AverageTime().Seconds())
	for _, r := range summary.Results {
		if r.ErrorMessage != "" {
			fmt.Fprintf(out, "  %s: %s\n", filepath.Base(r.InputFile), r.ErrorMessage)
		}
	}
}

func resultStatus(r pipeline.PipelineResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "ok"
	default:
		return "failed"
	}
}

func accuracyLabel(r pipeline.PipelineResult) string {
	if r.Skipped || !r.Success {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", r.FactCheckAccuracy*100)
}

func gitLabel(r pipeline.PipelineResult) string {
	switch {
	case r.GitPushed:
		return "pushed"
	case r.GitCommitted:
		return "committed"
	default:
		return "-"
	}
}

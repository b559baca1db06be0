package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gardenpipe/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Mode", "Status", "Started", "Files", "OK", "Failed", "Generated", "Duration"},
				runRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, statusTotals(stats))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session>",
		Short: "Show one run with its errors and articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Session", "Mode", "Status", "Started", "Files", "OK", "Failed", "Generated", "Duration"},
				runRows([]*history.Run{run}), nil))
			if run.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", run.ErrorMessage)
			}

			if len(run.Errors) > 0 {
				rows := make([][]string, 0, len(run.Errors))
				for _, e := range run.Errors {
					rows = append(rows, []string{e.Type, filepath.Base(e.File), e.Message})
				}
				fmt.Fprintln(out, renderTable([]string{"Type", "File", "Message"}, rows, nil))
			}

			articles, err := store.Articles(cmd.Context(), run.SessionID)
			if err != nil {
				return err
			}
			if len(articles) > 0 {
				rows := make([][]string, 0, len(articles))
				for _, a := range articles {
					rows = append(rows, []string{a.Category, truncateDisplay(a.Title, titleWidth), filepath.Base(a.SourcePath), a.OutputPath})
				}
				fmt.Fprintln(out, renderTable([]string{"Category", "Title", "Source", "Output"}, rows, nil))
			}
			return nil
		},
	}
}

func runRows(runs []*history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(100 * time.Millisecond).String()
		}
		mode := string(r.Mode)
		if r.DryRun {
			mode += " (dry)"
		}
		rows = append(rows, []string{
			r.SessionID,
			mode,
			string(r.Status),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.FilesProcessed),
			strconv.Itoa(r.FilesSuccessful),
			strconv.Itoa(r.FilesFailed),
			strconv.Itoa(r.ContentGenerated),
			duration,
		})
	}
	return rows
}

func statusTotals(stats map[history.Status]int) string {
	statuses := make([]string, 0, len(stats))
	for s := range stats {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	line := "Totals:"
	for _, s := range statuses {
		line += fmt.Sprintf(" %s=%d", s, stats[history.Status(s)])
	}
	return line
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gardenpipe/internal/logs"
)

const followWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs [session]",
		Short: "Show the run log for a session, or the latest run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			path, err := logs.ForSession(cfg.Paths.LogDir, session)
			if err != nil {
				if errors.Is(err, logs.ErrNoLogs) && session == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "No run logs in %s\n", cfg.Paths.LogDir)
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "==> %s <==\n", path)

			printer := linePrinter{out: cmd.OutOrStdout(), filter: filter, raw: raw}
			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			printer.print(result.Lines)
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			offset := result.Offset
			for {
				result, err := logs.Tail(followCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: followWait})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				printer.print(result.Lines)
				offset = result.Offset
				if followCtx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unformatted")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only show entries from this component")
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "Only show entries for this pipeline stage")
	return cmd
}

type linePrinter struct {
	out    io.Writer
	filter logs.Filter
	raw    bool
}

func (p linePrinter) print(lines []string) {
	for _, line := range lines {
		entry := logs.Parse(line)
		if !p.filter.Match(entry) {
			continue
		}
		if p.raw {
			fmt.Fprintln(p.out, line)
			continue
		}
		fmt.Fprintln(p.out, logs.Format(entry))
	}
}

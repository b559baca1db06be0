package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gardenpipe/internal/logging"
	"gardenpipe/internal/notifications"
	"gardenpipe/internal/preflight"
	"gardenpipe/internal/stage"
)

func newTestComponentsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-components",
		Short: "Check every pipeline component, including live API calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			logger := logging.NewNop()

			c := newClients(cfg)
			batch := newBatchComponents(cfg, c, logger)
			defer batch.repo.Close()
			integrated := newIntegratedComponents(cfg, c, logger, batch.repo)

			failed := 0
			var lines []string
			for _, r := range preflight.RunAll(cmd.Context(), cfg, false) {
				if !r.Passed {
					failed++
				}
				lines = append(lines, renderStatusLine(r.Name, checkKind(r.Passed, false), r.Detail, colorize))
			}
			writeSection(out, "Readiness", colorize, lines)

			checkers := append(batch.checkers(), integrated.checkers()...)
			lines = lines[:0]
			for _, h := range stage.CheckAll(cmd.Context(), checkers...) {
				if !h.Ready {
					failed++
				}
				lines = append(lines, renderStatusLine(h.Name, checkKind(h.Ready, false), h.Detail, colorize))
			}
			writeSection(out, "Components", colorize, lines)

			if failed > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d checks failed", failed)}
			}
			fmt.Fprintln(out, "\nAll components ready")
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Notifications not configured (set notifications.ntfy_topic or NTFY_TOPIC)")
				return nil
			}
			svc := notifications.NewService(cfg)
			if err := svc.Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}

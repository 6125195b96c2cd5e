package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sorapipe/internal/deps"
	"sorapipe/internal/logging"
	"sorapipe/internal/notifications"
	"sorapipe/internal/runstore"
	"sorapipe/internal/titles"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var runLimit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stage readiness, pending titles, and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config: %s\n", cmdCtx.configPath)

			depRows := make([][]string, 0, 6)
			for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
				state := "ok"
				if !status.Available {
					state = "missing"
					if status.Optional {
						state = "missing (optional)"
					}
				}
				depRows = append(depRows, []string{status.Name, state, status.Command, status.Detail})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"DEPENDENCY", "STATE", "COMMAND", "DETAIL"},
				depRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			handlers, err := buildHandlers(cmdCtx, allStageNames, nil, notifications.NewService(cfg), logging.NewNop())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(handlers))
			for _, handler := range handlers {
				health := handler.HealthCheck(cmd.Context())
				ready := "yes"
				if !health.Ready {
					ready = "no"
				}
				rows = append(rows, []string{handler.Name(), ready, health.Detail})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"STAGE", "READY", "DETAIL"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if cfg.Paths.TitlesFile != "" {
				pending, err := titles.NewStore(cfg.Paths.TitlesFile, cfg.TitlesCursorFile()).Remaining()
				if err == nil {
					fmt.Fprintf(out, "Pending titles: %d\n", pending)
				}
			}

			store, err := runstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), runLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs")
				return nil
			}
			runRows := make([][]string, 0, len(runs))
			for _, run := range runs {
				runRows = append(runRows, []string{
					shortRunID(run.RunID),
					run.Status,
					strings.Join(run.Steps, ","),
					formatStamp(run.StartedAt),
					formatStamp(run.FinishedAt),
					run.Error,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"RUN", "STATUS", "STEPS", "STARTED", "FINISHED", "ERROR"},
				runRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&runLimit, "limit", 10, "How many recent runs to list")
	return cmd
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

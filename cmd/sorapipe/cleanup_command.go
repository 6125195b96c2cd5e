package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sorapipe/internal/maintenance"
)

func newCleanupCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired files per the retention windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			report := maintenance.NewSweeper(cfg, logger).Sweep()
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, len(report.PerLabel))
			for _, label := range []string{maintenance.LabelRaw, maintenance.LabelBlurred, maintenance.LabelMerged} {
				removed, enabled := report.PerLabel[label]
				if !enabled {
					rows = append(rows, []string{label, "disabled", "-"})
					continue
				}
				rows = append(rows, []string{label, "swept", strconv.Itoa(removed)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"TARGET", "STATE", "REMOVED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Removed %d entries\n", report.RemovedTotal)
			for _, message := range report.Errors {
				fmt.Fprintf(out, "warning: %s\n", message)
			}
			return nil
		},
	}
	return cmd
}

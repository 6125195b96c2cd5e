package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sorapipe/internal/history"
	"sorapipe/internal/notifications"
	"sorapipe/internal/pipeline"
	"sorapipe/internal/runstore"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [stage ...]",
		Short: "Run a scenario over the selected stages (default: all)",
		Long: "Runs the selected stages in canonical order: autogen, download, blur, merge, upload.\n" +
			"The first failing stage aborts the scenario. Ctrl-C stops all running workers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				names = allStageNames
			}

			journal := history.New(cfg.Paths.HistoryFile)
			notifier := notifications.NewService(cfg)
			handlers, err := buildHandlers(cmdCtx, names, journal, notifier, logger)
			if err != nil {
				return err
			}

			store, err := runstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run store: %w", err)
			}
			defer store.Close()

			orch := pipeline.New(cfg, journal, notifier, logger, pipeline.WithRunStore(store))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				orch.StopAll()
			}()

			if err := orch.Run(ctx, handlers); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Scenario finished")
			return nil
		},
	}
	return cmd
}

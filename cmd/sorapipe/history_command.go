package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sorapipe/internal/history"
)

func newHistoryCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline history events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := history.Read(cfg.Paths.HistoryFile)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No history recorded")
				return nil
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
			for _, record := range records {
				stamp := time.Unix(record.TS, 0).Local().Format("2006-01-02 15:04:05")
				if len(record.Payload) == 0 {
					fmt.Fprintf(out, "%s  %s\n", stamp, record.Event)
					continue
				}
				payload, err := json.Marshal(record.Payload)
				if err != nil {
					payload = []byte("{}")
				}
				fmt.Fprintf(out, "%s  %s  %s\n", stamp, record.Event, payload)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "How many events to show (0 for all)")
	return cmd
}

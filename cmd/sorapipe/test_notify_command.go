package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sorapipe/internal/notifications"
)

func newTestNotifyCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if notifications.NewService(cfg).TestNotification(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "Notification sent")
				return nil
			}
			return fmt.Errorf("notification failed (check notifications.enabled, bot_token, chat_id)")
		},
	}
}

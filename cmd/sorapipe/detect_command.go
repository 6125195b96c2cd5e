package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sorapipe/internal/detect"
)

func newDetectCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <video>",
		Short: "Probe a video for the generator watermark",
		Long: "Samples frames from the video, runs template matching against the\n" +
			"configured watermark template, and prints the detection record as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}
			if cfg.Detect.Template == "" {
				return fmt.Errorf("detect.template is not configured")
			}

			assets, err := detect.LoadAssets(cfg.Detect.Template, cfg.Detect.Mask)
			if err != nil {
				return fmt.Errorf("load detection assets: %w", err)
			}
			detector := detect.New(cfg.Detect, assets, cfg.Encoder.Binary, logger)
			report, err := detector.Detect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	return cmd
}

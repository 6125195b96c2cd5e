package main

import (
	"fmt"
	"log/slog"

	"sorapipe/internal/blur"
	"sorapipe/internal/encoder"
	"sorapipe/internal/history"
	"sorapipe/internal/merge"
	"sorapipe/internal/notifications"
	"sorapipe/internal/scripts"
	"sorapipe/internal/stage"
)

var allStageNames = []string{"autogen", "download", "blur", "merge", "upload"}

// buildHandlers constructs the stage handlers for the requested names.
func buildHandlers(ctx *commandContext, names []string, journal *history.Log, notifier notifications.Service, logger *slog.Logger) ([]stage.Handler, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}

	handlers := make([]stage.Handler, 0, len(names))
	for _, name := range names {
		switch name {
		case "autogen":
			handlers = append(handlers, scripts.NewAutogenStage(cfg, journal, notifier, logger))
		case "download":
			handlers = append(handlers, scripts.NewDownloadStage(cfg, journal, notifier, logger))
		case "blur":
			runner := encoder.New(cfg.Encoder, logger)
			handlers = append(handlers, blur.NewStage(cfg, runner, journal, logger))
		case "merge":
			handlers = append(handlers, merge.NewStage(cfg, journal, logger))
		case "upload":
			handlers = append(handlers, scripts.NewUploadStage(cfg, ctx.configPath, journal, notifier, logger))
		default:
			return nil, fmt.Errorf("unknown stage %q (valid: autogen, download, blur, merge, upload)", name)
		}
	}
	return handlers, nil
}

package scripts

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"sorapipe/internal/browser"
	"sorapipe/internal/config"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/notifications"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// DownloadStage drives the draft-scraping worker.
type DownloadStage struct {
	*worker
}

// NewDownloadStage constructs the download wrapper.
func NewDownloadStage(cfg *config.Config, journal *history.Log, notifier notifications.Service, logger *slog.Logger) *DownloadStage {
	return &DownloadStage{
		worker: newWorker("download", "DL", cfg.Workers.Download, cfg, journal, notifier, logger),
	}
}

// Name implements stage.Handler.
func (s *DownloadStage) Name() string { return s.name }

// HealthCheck implements stage.Handler.
func (s *DownloadStage) HealthCheck(ctx context.Context) stage.Health {
	return s.health(ctx)
}

// Execute runs the worker with the download target and titles contract in its
// environment. MAX_VIDEOS follows the worker convention of 0 for unlimited.
func (s *DownloadStage) Execute(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Paths.DownloadsDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, s.name, "execute", "create downloads dir", err)
	}
	if !browser.ProbeCDP(ctx, s.cfg.Browser.CDPPort) {
		s.logger.Warn("browser endpoint not responding",
			logging.Int("port", s.cfg.Browser.CDPPort))
	}

	env := []string{
		"DOWNLOAD_DIR=" + s.cfg.Paths.DownloadsDir,
		"TITLES_FILE=" + s.cfg.Paths.TitlesFile,
		"TITLES_CURSOR_FILE=" + s.cfg.TitlesCursorFile(),
		"MAX_VIDEOS=" + strconv.Itoa(s.cfg.Download.MaxVideos),
	}
	return s.run(ctx, env)
}

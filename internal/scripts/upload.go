package scripts

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"sorapipe/internal/config"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/notifications"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// publishAtLayout is the worker contract: ISO UTC with a Z suffix.
const publishAtLayout = "2006-01-02T15:04:05Z"

// UploadStage drives the platform upload worker on a schedule.
type UploadStage struct {
	*worker
	configPath string
	now        func() time.Time
}

// NewUploadStage constructs the upload wrapper. configPath is where the
// last_publish_at watermark is persisted after a successful run.
func NewUploadStage(cfg *config.Config, configPath string, journal *history.Log, notifier notifications.Service, logger *slog.Logger) *UploadStage {
	return &UploadStage{
		worker:     newWorker("upload", "YT", cfg.Workers.Upload, cfg, journal, notifier, logger),
		configPath: configPath,
		now:        time.Now,
	}
}

// WithClock overrides the schedule clock (tests).
func (s *UploadStage) WithClock(now func() time.Time) *UploadStage {
	if now != nil {
		s.now = now
	}
	return s
}

// Name implements stage.Handler.
func (s *UploadStage) Name() string { return s.name }

// HealthCheck implements stage.Handler.
func (s *UploadStage) HealthCheck(ctx context.Context) stage.Health {
	if health := s.health(ctx); !health.Ready {
		return health
	}
	if s.cfg.ActiveChannel() == nil {
		return stage.Unhealthy(s.name, "no active upload channel")
	}
	return stage.Healthy(s.name)
}

// Execute runs the worker with the upload contract in its environment and,
// on success, advances the last_publish_at watermark.
func (s *UploadStage) Execute(ctx context.Context) error {
	channel := s.cfg.ActiveChannel()
	if channel == nil {
		return services.Wrap(services.ErrConfiguration, s.name, "execute", "no active upload channel", nil)
	}

	draftOnly := "0"
	if s.cfg.Upload.DraftOnly {
		draftOnly = "1"
	}
	publishAt := ComputePublishAt(s.now(), s.cfg.Upload.LastPublishAt,
		s.cfg.Upload.ScheduleMinutesFromNow, s.cfg.Upload.BatchStepMinutes)

	env := []string{
		"APP_CONFIG_PATH=" + s.configPath,
		"YOUTUBE_CHANNEL_NAME=" + channel.Name,
		"YOUTUBE_SRC_DIR=" + s.cfg.Upload.SrcDir,
		"YOUTUBE_DRAFT_ONLY=" + draftOnly,
		"YOUTUBE_ARCHIVE_DIR=" + s.cfg.Upload.ArchiveDir,
		"YOUTUBE_BATCH_LIMIT=" + strconv.Itoa(s.cfg.Upload.BatchLimit),
		"YOUTUBE_BATCH_STEP_MINUTES=" + strconv.Itoa(s.cfg.Upload.BatchStepMinutes),
		"YOUTUBE_PUBLISH_AT=" + publishAt.Format(publishAtLayout),
	}
	if err := s.run(ctx, env); err != nil {
		return err
	}

	if !s.cfg.Upload.DraftOnly {
		s.persistPublishAt(publishAt)
	}
	return nil
}

// persistPublishAt advances the schedule watermark so the next batch lands
// after this one. Persistence failures are logged, never fatal.
func (s *UploadStage) persistPublishAt(publishAt time.Time) {
	s.cfg.Upload.LastPublishAt = publishAt.Format(publishAtLayout)
	if s.configPath == "" {
		return
	}
	if err := s.cfg.Save(s.configPath); err != nil {
		s.logger.Warn("persist last_publish_at failed", logging.Error(err))
	}
}

// ComputePublishAt returns the next publish timestamp in UTC: at least
// scheduleMinutes from now, and at least batchStep minutes after the previous
// batch's watermark.
func ComputePublishAt(now time.Time, lastPublishAt string, scheduleMinutes, batchStep int) time.Time {
	candidate := now.UTC().Add(time.Duration(scheduleMinutes) * time.Minute)
	if last, err := time.Parse(publishAtLayout, lastPublishAt); err == nil {
		stepped := last.UTC().Add(time.Duration(batchStep) * time.Minute)
		if stepped.After(candidate) {
			candidate = stepped
		}
	}
	return candidate.Truncate(time.Second)
}

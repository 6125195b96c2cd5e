package scripts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"sorapipe/internal/browser"
	"sorapipe/internal/config"
	"sorapipe/internal/fileutil"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/notifications"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// AutogenStage drives the prompt-submission worker against the browser's
// DevTools endpoint.
type AutogenStage struct {
	*worker
	shadow *browser.Shadow
}

// NewAutogenStage constructs the autogen wrapper.
func NewAutogenStage(cfg *config.Config, journal *history.Log, notifier notifications.Service, logger *slog.Logger) *AutogenStage {
	s := &AutogenStage{
		worker: newWorker("autogen", "AUTOGEN", cfg.Workers.Autogen, cfg, journal, notifier, logger),
	}
	if cfg.Browser.ShadowBase != "" {
		s.shadow = browser.NewShadow(cfg.Browser.ShadowBase, logger)
	}
	return s
}

// Name implements stage.Handler.
func (s *AutogenStage) Name() string { return s.name }

// HealthCheck implements stage.Handler.
func (s *AutogenStage) HealthCheck(ctx context.Context) stage.Health {
	if health := s.health(ctx); !health.Ready {
		return health
	}
	if _, err := os.Stat(s.cfg.Autogen.PromptsFile); err != nil {
		return stage.Unhealthy(s.name, "prompts file missing")
	}
	return stage.Healthy(s.name)
}

// Execute stages the prompts file, refreshes the shadow profile, and runs the
// worker with the browser endpoint in its environment.
func (s *AutogenStage) Execute(ctx context.Context) error {
	prompts, err := s.stagePrompts()
	if err != nil {
		return err
	}

	if s.shadow != nil {
		if profile := s.cfg.ActiveProfile(); profile != nil {
			if _, err := s.shadow.Sync(*profile); err != nil {
				s.logger.Warn("shadow profile refresh failed", logging.Error(err))
			}
		}
	}
	if !browser.ProbeCDP(ctx, s.cfg.Browser.CDPPort) {
		s.logger.Warn("browser endpoint not responding",
			logging.Int("port", s.cfg.Browser.CDPPort))
	}

	env := []string{
		"SORA_PROMPTS_FILE=" + prompts,
		"SORA_CDP_ENDPOINT=" + browser.CDPEndpoint(s.cfg.Browser.CDPPort),
	}
	return s.run(ctx, env)
}

// stagePrompts copies the prompts file into the state directory so the worker
// can consume and rewrite it without touching the master list.
func (s *AutogenStage) stagePrompts() (string, error) {
	src := s.cfg.Autogen.PromptsFile
	if _, err := os.Stat(src); err != nil {
		return "", services.Wrap(services.ErrNotFound, s.name, "stage prompts", src, err)
	}
	staged := filepath.Join(s.cfg.Paths.StateDir, "prompts_staged.txt")
	if err := os.MkdirAll(s.cfg.Paths.StateDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, s.name, "stage prompts", "create state dir", err)
	}
	if err := fileutil.CopyFile(src, staged); err != nil {
		return "", services.Wrap(services.ErrTransient, s.name, "stage prompts", staged, err)
	}
	return staged, nil
}

// Package blur runs the watermark-removal pass: every video in the blur
// source directory is re-encoded through the delogo chain by a bounded pool
// of encoder workers.
package blur

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sorapipe/internal/config"
	"sorapipe/internal/encoder"
	"sorapipe/internal/fileutil"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

const requiredZones = 3

// Progress is invoked after each finished job with done and total counts.
type Progress func(done, total int)

// Stage encodes all blur-source videos through the delogo chain.
type Stage struct {
	cfg      *config.Config
	runner   *encoder.Runner
	journal  *history.Log
	logger   *slog.Logger
	progress Progress
}

// NewStage constructs the blur stage.
func NewStage(cfg *config.Config, runner *encoder.Runner, journal *history.Log, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage{
		cfg:     cfg,
		runner:  runner,
		journal: journal,
		logger:  logging.NewComponentLogger(logger, "blur"),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return "blur" }

// SetProgress registers a progress callback. Must be set before Execute.
func (s *Stage) SetProgress(p Progress) { s.progress = p }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if len(s.cfg.ActivePresetZones()) != requiredZones {
		return stage.Unhealthy(s.Name(), "active preset must define exactly 3 zones")
	}
	if _, err := os.Stat(s.cfg.Paths.BlurSrcDir); err != nil {
		return stage.Unhealthy(s.Name(), "blur source directory missing")
	}
	return stage.Healthy(s.Name())
}

// Execute encodes every source video, running up to blur_threads jobs in
// parallel. The stage fails when any job fails; a blur_finish history record
// is written either way.
func (s *Stage) Execute(ctx context.Context) error {
	zones := s.cfg.ActivePresetZones()
	if len(zones) != requiredZones {
		return services.Wrap(services.ErrConfiguration, s.Name(), "execute",
			"active preset must define exactly 3 zones", nil)
	}

	files, err := fileutil.ListVideos(s.cfg.Paths.BlurSrcDir)
	if err != nil {
		return services.Wrap(services.ErrNotFound, s.Name(), "list source", s.cfg.Paths.BlurSrcDir, err)
	}
	if err := os.MkdirAll(s.cfg.Paths.BlurredDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, s.Name(), "create output dir", s.cfg.Paths.BlurredDir, err)
	}

	total := len(files)
	s.logger.Info("blur pass starting",
		logging.Int("files", total),
		logging.Int("workers", s.cfg.Encoder.BlurThreads),
		logging.String("preset", s.cfg.Encoder.ActivePreset))

	var (
		mu       sync.Mutex
		done     int
		failures int
	)
	sem := make(chan struct{}, s.cfg.Encoder.BlurThreads)
	var wg sync.WaitGroup

	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			input := filepath.Join(s.cfg.Paths.BlurSrcDir, file)
			output := filepath.Join(s.cfg.Paths.BlurredDir, outputName(file, s.cfg.Encoder.Format))
			result, encodeErr := s.runner.Encode(ctx, input, output, zones)

			mu.Lock()
			done++
			doneNow := done
			if encodeErr != nil {
				failures++
			}
			// Emitted while holding the mutex so counts arrive in order.
			if s.progress != nil {
				s.progress(doneNow, total)
			}
			mu.Unlock()

			status := "OK"
			if encodeErr != nil {
				status = "FAIL"
			}
			s.logger.Info("blur job finished",
				logging.String("status", status),
				logging.String("attempts", strings.Join(result.Attempted, ",")),
				logging.String("file", file))
			if encodeErr == nil && result.AudioUpgraded {
				s.logger.Info("audio copy not possible, re-encoded to aac", logging.String("file", file))
			}
		}(file)
	}
	wg.Wait()

	ok := failures == 0
	s.record(ok, total)
	if !ok {
		return services.Wrap(services.ErrStageFailed, s.Name(), "execute",
			"encode failures", nil)
	}
	return nil
}

func (s *Stage) record(ok bool, count int) {
	if s.journal == nil {
		return
	}
	err := s.journal.Append("blur_finish", map[string]any{
		"ok":     ok,
		"count":  count,
		"preset": s.cfg.Encoder.ActivePreset,
		"src":    s.cfg.Paths.BlurSrcDir,
	})
	if err != nil {
		s.logger.Warn("history append failed", logging.Error(err))
	}
}

// outputName keeps the base name but moves the file to the configured
// container format.
func outputName(file, format string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	return base + "." + format
}

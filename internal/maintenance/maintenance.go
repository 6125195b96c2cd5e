// Package maintenance removes expired files from the pipeline working
// directories according to per-directory retention windows.
package maintenance

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"sorapipe/internal/config"
	"sorapipe/internal/logging"
)

// Target labels for the sweep report.
const (
	LabelRaw     = "RAW"
	LabelBlurred = "BLURRED"
	LabelMerged  = "MERGED"
)

// Report summarizes one sweep.
type Report struct {
	RemovedTotal int
	PerLabel     map[string]int
	Errors       []string
}

// Sweeper applies retention windows to the working directories.
type Sweeper struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper constructs a sweeper.
func NewSweeper(cfg *config.Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "maintenance"),
		now:    time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep scans every retention target. A retention of zero or below disables
// the target; per-entry errors are collected and never abort the sweep.
func (s *Sweeper) Sweep() Report {
	report := Report{PerLabel: map[string]int{}}
	targets := []struct {
		label     string
		dir       string
		retention int
	}{
		{LabelRaw, s.cfg.Paths.DownloadsDir, s.cfg.Maintenance.RetentionDays.Downloads},
		{LabelBlurred, s.cfg.Paths.BlurredDir, s.cfg.Maintenance.RetentionDays.Blurred},
		{LabelMerged, s.cfg.Paths.MergedDir, s.cfg.Maintenance.RetentionDays.Merged},
	}

	for _, target := range targets {
		if target.retention <= 0 {
			continue
		}
		removed := s.sweepDir(target.label, target.dir, target.retention, &report)
		report.PerLabel[target.label] = removed
		report.RemovedTotal += removed
	}

	s.logger.Info("sweep finished",
		logging.Int("removed", report.RemovedTotal),
		logging.Int("errors", len(report.Errors)))
	return report
}

func (s *Sweeper) sweepDir(label, dir string, retentionDays int, report *Report) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", label, err))
		return 0
	}

	cutoff := s.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s: %v", label, entry.Name(), err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if entry.IsDir() {
			// Directories go only when empty.
			if err := os.Remove(path); err != nil {
				if !isDirNotEmpty(err) {
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %s: %v", label, entry.Name(), err))
				}
				continue
			}
		} else if err := os.Remove(path); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s: %v", label, entry.Name(), err))
			continue
		}
		removed++
		s.logger.Debug("expired entry removed",
			logging.String("label", label),
			logging.String("file", entry.Name()))
	}
	return removed
}

// isDirNotEmpty matches the failure mode of removing a populated directory,
// which the sweep treats as "keep", not as an error.
func isDirNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

// Package testsupport provides shared fixtures for package tests: a config
// seeded with per-test temp directories, bulk file creation, and a run store
// bound to the test lifetime.
package testsupport

import (
	"path/filepath"
	"testing"

	"sorapipe/internal/config"
)

// NewConfig produces a config whose working directories all live under a
// unique temp root for the test. The directories exist on return.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ProjectRoot = base
	cfg.Paths.DownloadsDir = filepath.Join(base, "downloads")
	cfg.Paths.BlurredDir = filepath.Join(base, "blurred")
	cfg.Paths.MergedDir = filepath.Join(base, "merged")
	cfg.Paths.BlurSrcDir = cfg.Paths.DownloadsDir
	cfg.Paths.MergeSrcDir = cfg.Paths.BlurredDir
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.HistoryFile = filepath.Join(base, "state", "history.jsonl")
	cfg.Paths.TitlesFile = filepath.Join(base, "titles.txt")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

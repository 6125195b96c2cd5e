package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sorapipe/internal/config"
)

func TestLoadWithoutFileProducesCompleteDocument(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.DownloadsDir != filepath.Join(tempHome, "sorapipe", "downloads") {
		t.Fatalf("unexpected downloads dir: %q", cfg.Paths.DownloadsDir)
	}
	if !filepath.IsAbs(cfg.Paths.HistoryFile) {
		t.Fatalf("history file not absolute: %q", cfg.Paths.HistoryFile)
	}
	if cfg.Encoder.VCodec != "auto_hw" || cfg.Encoder.CRF != 18 {
		t.Fatalf("unexpected encoder defaults: %+v", cfg.Encoder)
	}
	if cfg.Encoder.BlurThreads != 2 {
		t.Fatalf("unexpected blur_threads default: %d", cfg.Encoder.BlurThreads)
	}
	if cfg.Merge.GroupSize != 3 || cfg.Merge.Pattern != "auto" {
		t.Fatalf("unexpected merge defaults: %+v", cfg.Merge)
	}
	if cfg.Browser.CDPPort != 9222 {
		t.Fatalf("unexpected cdp_port default: %d", cfg.Browser.CDPPort)
	}
	if cfg.Detect.Threshold != 0.7 || cfg.Detect.Frames != 5 {
		t.Fatalf("unexpected detect defaults: %+v", cfg.Detect)
	}
	if cfg.Notifications.Enabled {
		t.Fatal("notifications must be disabled by default")
	}
}

func TestLoadClampsRangedIntegers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[encoder]
crf = 99
blur_threads = 20

[merge]
group_size = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Encoder.CRF != 51 {
		t.Fatalf("crf not clamped: %d", cfg.Encoder.CRF)
	}
	if cfg.Encoder.BlurThreads != 8 {
		t.Fatalf("blur_threads not clamped: %d", cfg.Encoder.BlurThreads)
	}
	if cfg.Merge.GroupSize != 3 {
		t.Fatalf("group_size not defaulted: %d", cfg.Merge.GroupSize)
	}
}

func TestLoadExpandsEnvPlaceholdersAndTilde(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SORA_WORK", filepath.Join(tempHome, "work"))

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
project_root = "${SORA_WORK}"
downloads_dir = "~/dl"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.ProjectRoot != filepath.Join(tempHome, "work") {
		t.Fatalf("env placeholder not expanded: %q", cfg.Paths.ProjectRoot)
	}
	if cfg.Paths.DownloadsDir != filepath.Join(tempHome, "dl") {
		t.Fatalf("tilde not expanded: %q", cfg.Paths.DownloadsDir)
	}
}

func TestActiveProfileMustExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[browser]
active_profile = "missing"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "active_profile") {
		t.Fatalf("expected active_profile validation error, got %v", err)
	}
}

func TestActivePresetZonesLookup(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.ActivePreset = "portrait_9x16"
	cfg.Encoder.Presets["portrait_9x16"] = config.Preset{
		Aspect: "9:16",
		Zones: []config.Zone{
			{X: 30, Y: 105, W: 157, H: 62},
			{X: 515, Y: 610, W: 157, H: 62},
			{X: 30, Y: 1110, W: 157, H: 62},
		},
	}
	zones := cfg.ActivePresetZones()
	if len(zones) != 3 {
		t.Fatalf("expected 3 zones, got %d", len(zones))
	}
	if zones[2].Y != 1110 {
		t.Fatalf("unexpected zone: %+v", zones[2])
	}
}

func TestSaveIsAtomicAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := config.Default()
	cfg.Upload.LastPublishAt = "2026-03-01T10:00:00Z"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected saved file to exist")
	}
	if loaded.Upload.LastPublishAt != "2026-03-01T10:00:00Z" {
		t.Fatalf("last_publish_at lost in round trip: %q", loaded.Upload.LastPublishAt)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestTitlesCursorFileSitsNextToTitles(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TitlesFile = "/data/titles.txt"
	if got := cfg.TitlesCursorFile(); got != "/data/titles.cursor" {
		t.Fatalf("unexpected cursor path: %q", got)
	}
}

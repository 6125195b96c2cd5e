package deps

import (
	"os"
	"path/filepath"
	"testing"

	"sorapipe/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: ""},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for unset command: %#v", results[2])
	}
}

func TestCheckBinariesStatsAbsolutePaths(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "worker.sh")
	results := CheckBinaries([]Requirement{{Name: "worker", Command: missing}})
	if results[0].Available {
		t.Fatal("missing worker script must be unavailable")
	}
}

func TestRequirementsCoverConfiguredTools(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Binary = "/opt/ffmpeg/bin/ffmpeg"
	cfg.Workers.Download.Entry = "/srv/workers/download.sh"

	reqs := Requirements(&cfg)
	byName := map[string]Requirement{}
	for _, req := range reqs {
		byName[req.Name] = req
	}

	if byName["ffmpeg"].Command != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg command wrong: %q", byName["ffmpeg"].Command)
	}
	if byName["ffprobe"].Command != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("ffprobe must sit next to the encoder: %q", byName["ffprobe"].Command)
	}
	if byName["download worker"].Command != "/srv/workers/download.sh" {
		t.Fatalf("worker entry wrong: %q", byName["download worker"].Command)
	}
	if byName["ffmpeg"].Optional {
		t.Fatal("the encoder is not optional")
	}
}

package blur_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sorapipe/internal/blur"
	"sorapipe/internal/config"
	"sorapipe/internal/encoder"
	"sorapipe/internal/history"
	"sorapipe/internal/services"
)

type poolExecutor struct {
	mu         sync.Mutex
	calls      []string
	inputs     []string
	outputs    []string
	failInputs map[string]bool

	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (p *poolExecutor) Run(_ context.Context, _ string, args []string, _ func(string)) error {
	input := ""
	inputPath := ""
	for i, arg := range args {
		if arg == "-i" && i+1 < len(args) {
			inputPath = args[i+1]
			input = filepath.Base(inputPath)
		}
	}
	outputPath := ""
	if len(args) > 0 {
		outputPath = args[len(args)-1]
	}

	now := p.active.Add(1)
	for {
		seen := p.maxSeen.Load()
		if now <= seen || p.maxSeen.CompareAndSwap(seen, now) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.active.Add(-1)

	p.mu.Lock()
	p.calls = append(p.calls, input)
	p.inputs = append(p.inputs, inputPath)
	p.outputs = append(p.outputs, outputPath)
	fail := p.failInputs[input]
	p.mu.Unlock()

	if fail {
		return errors.New("encode failed")
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.BlurSrcDir = t.TempDir()
	cfg.Paths.BlurredDir = filepath.Join(t.TempDir(), "blurred")
	cfg.Encoder.VCodec = "libx264"
	cfg.Encoder.CopyAudio = false
	cfg.Encoder.BlurThreads = 2
	cfg.Encoder.ActivePreset = "portrait"
	cfg.Encoder.Presets["portrait"] = config.Preset{
		Aspect: "9:16",
		Zones: []config.Zone{
			{X: 30, Y: 105, W: 157, H: 62},
			{X: 515, Y: 610, W: 157, H: 62},
			{X: 30, Y: 1110, W: 157, H: 62},
		},
	}
	return &cfg
}

func seedVideos(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newStage(t *testing.T, cfg *config.Config, exec encoder.Executor) (*blur.Stage, *history.Log, string) {
	t.Helper()
	journalPath := filepath.Join(t.TempDir(), "history.jsonl")
	journal := history.New(journalPath)
	runner := encoder.New(cfg.Encoder, nil, encoder.WithExecutor(exec), encoder.WithPlatform("linux"))
	return blur.NewStage(cfg, runner, journal, nil), journal, journalPath
}

func TestExecuteEncodesAllFiles(t *testing.T) {
	cfg := testConfig(t)
	seedVideos(t, cfg.Paths.BlurSrcDir, "a.mp4", "b.mov", "c.webm", "d.m4v")
	exec := &poolExecutor{}
	stage, _, journalPath := newStage(t, cfg, exec)

	var progressMu sync.Mutex
	var progress []int
	stage.SetProgress(func(done, total int) {
		progressMu.Lock()
		progress = append(progress, done)
		progressMu.Unlock()
		if total != 4 {
			t.Errorf("unexpected total %d", total)
		}
	})

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(exec.calls) != 4 {
		t.Fatalf("expected 4 encodes, got %d", len(exec.calls))
	}
	for i, input := range exec.inputs {
		if filepath.Dir(input) != cfg.Paths.BlurSrcDir {
			t.Fatalf("input outside source dir: %q", input)
		}
		if _, err := os.Stat(input); err != nil {
			t.Fatalf("encoder was given a nonexistent input: %v", err)
		}
		if filepath.Dir(exec.outputs[i]) != cfg.Paths.BlurredDir {
			t.Fatalf("output outside blurred dir: %q", exec.outputs[i])
		}
		if _, err := os.Stat(filepath.Dir(exec.outputs[i])); err != nil {
			t.Fatalf("output parent does not exist: %v", err)
		}
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	if len(progress) != 4 || progress[len(progress)-1] != 4 {
		t.Fatalf("unexpected progress: %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}

	records, err := history.Read(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Event != "blur_finish" {
		t.Fatalf("unexpected history: %+v", records)
	}
	if ok, _ := records[0].Payload["ok"].(bool); !ok {
		t.Fatalf("blur_finish must report ok: %+v", records[0].Payload)
	}
	if count, _ := records[0].Payload["count"].(float64); count != 4 {
		t.Fatalf("blur_finish count wrong: %+v", records[0].Payload)
	}
}

func TestExecuteRespectsWorkerBound(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encoder.BlurThreads = 2
	seedVideos(t, cfg.Paths.BlurSrcDir, "a.mp4", "b.mp4", "c.mp4", "d.mp4", "e.mp4", "f.mp4")
	exec := &poolExecutor{delay: 30 * time.Millisecond}
	stage, _, _ := newStage(t, cfg, exec)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if max := exec.maxSeen.Load(); max > 2 {
		t.Fatalf("worker bound exceeded: %d concurrent encodes", max)
	}
}

func TestExecuteFailsWhenAnyJobFails(t *testing.T) {
	cfg := testConfig(t)
	seedVideos(t, cfg.Paths.BlurSrcDir, "a.mp4", "b.mp4")
	exec := &poolExecutor{failInputs: map[string]bool{"b.mp4": true}}
	stage, _, journalPath := newStage(t, cfg, exec)

	err := stage.Execute(context.Background())
	if !errors.Is(err, services.ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}

	records, readErr := history.Read(journalPath)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(records) != 1 {
		t.Fatalf("blur_finish must be written on failure too: %+v", records)
	}
	if ok, _ := records[0].Payload["ok"].(bool); ok {
		t.Fatal("blur_finish must report ok=false")
	}
}

func TestExecuteRequiresExactlyThreeZones(t *testing.T) {
	cfg := testConfig(t)
	preset := cfg.Encoder.Presets["portrait"]
	preset.Zones = preset.Zones[:2]
	cfg.Encoder.Presets["portrait"] = preset
	seedVideos(t, cfg.Paths.BlurSrcDir, "a.mp4")
	exec := &poolExecutor{}
	stage, _, _ := newStage(t, cfg, exec)

	err := stage.Execute(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("no encodes may start on config error: %v", exec.calls)
	}
}

func TestOutputNamesFollowConfiguredFormat(t *testing.T) {
	cfg := testConfig(t)
	seedVideos(t, cfg.Paths.BlurSrcDir, "clip.mov")
	exec := &poolExecutor{}
	stage, _, _ := newStage(t, cfg, exec)

	if err := stage.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(exec.calls) != 1 || !strings.HasSuffix(exec.calls[0], ".mov") {
		t.Fatalf("unexpected call inputs: %v", exec.calls)
	}
}

func TestHealthCheckFlagsMissingSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.BlurSrcDir = filepath.Join(t.TempDir(), "absent")
	stage, _, _ := newStage(t, cfg, &poolExecutor{})

	health := stage.HealthCheck(context.Background())
	if health.Ready {
		t.Fatal("missing source directory must be unhealthy")
	}
}

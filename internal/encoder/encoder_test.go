package encoder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sorapipe/internal/config"
)

type scriptedExecutor struct {
	calls   [][]string
	results []error
}

func (s *scriptedExecutor) Run(_ context.Context, _ string, args []string, _ func(string)) error {
	s.calls = append(s.calls, args)
	if len(s.results) == 0 {
		return nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result
}

func baseConfig() config.Encoder {
	return config.Encoder{
		Binary:    "ffmpeg",
		VCodec:    "auto_hw",
		CRF:       18,
		Preset:    "veryfast",
		Format:    "mp4",
		CopyAudio: true,
	}
}

func threeZones() []config.Zone {
	return []config.Zone{
		{X: 30, Y: 105, W: 157, H: 62},
		{X: 515, Y: 610, W: 157, H: 62},
		{X: 30, Y: 1110, W: 157, H: 62},
	}
}

func TestFilterChainComposition(t *testing.T) {
	chain := FilterChain(threeZones(), "hqdn3d")
	want := "delogo=x=30:y=105:w=157:h=62:show=0," +
		"delogo=x=515:y=610:w=157:h=62:show=0," +
		"delogo=x=30:y=1110:w=157:h=62:show=0," +
		"hqdn3d,format=yuv420p"
	if chain != want {
		t.Fatalf("unexpected chain:\n got %s\nwant %s", chain, want)
	}

	bare := FilterChain(threeZones()[:1], "")
	if bare != "delogo=x=30:y=105:w=157:h=62:show=0,format=yuv420p" {
		t.Fatalf("unexpected bare chain: %s", bare)
	}
}

func TestLadderOnDarwinWithCopyAudio(t *testing.T) {
	runner := New(baseConfig(), nil, WithPlatform("darwin"))
	attempts, upgraded := runner.Ladder()
	if upgraded {
		t.Fatal("auto_hw must not report a vcodec upgrade")
	}
	labels := make([]string, len(attempts))
	for i, attempt := range attempts {
		labels[i] = attempt.Label + "+" + attempt.Audio
	}
	want := []string{"HW+copy", "HW+aac", "SW+copy", "SW+aac"}
	if strings.Join(labels, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected ladder: %v", labels)
	}
	if attempts[0].VideoArgs[1] != "h264_videotoolbox" {
		t.Fatalf("unexpected HW args: %v", attempts[0].VideoArgs)
	}
	if attempts[2].VideoArgs[1] != "libx264" {
		t.Fatalf("unexpected SW args: %v", attempts[2].VideoArgs)
	}
}

func TestLadderOnLinuxSkipsHardware(t *testing.T) {
	runner := New(baseConfig(), nil, WithPlatform("linux"))
	attempts, _ := runner.Ladder()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Label != "SW" || attempts[0].Audio != "copy" ||
		attempts[1].Label != "SW" || attempts[1].Audio != "aac" {
		t.Fatalf("unexpected ladder: %+v", attempts)
	}
}

func TestLadderWithoutCopyAudio(t *testing.T) {
	cfg := baseConfig()
	cfg.CopyAudio = false
	runner := New(cfg, nil, WithPlatform("darwin"))
	attempts, _ := runner.Ladder()
	labels := make([]string, len(attempts))
	for i, attempt := range attempts {
		labels[i] = attempt.Label + "+" + attempt.Audio
	}
	if strings.Join(labels, " ") != "HW+aac SW+aac" {
		t.Fatalf("unexpected ladder: %v", labels)
	}
}

func TestLadderUpgradesCopyVCodec(t *testing.T) {
	cfg := baseConfig()
	cfg.VCodec = "copy"
	runner := New(cfg, nil, WithPlatform("darwin"))
	attempts, upgraded := runner.Ladder()
	if !upgraded {
		t.Fatal("vcodec=copy must report an upgrade")
	}
	for _, attempt := range attempts {
		if attempt.Label == "HW" {
			t.Fatalf("upgraded copy must not use hardware: %v", attempt)
		}
	}
}

func TestEncodeStopsAtFirstSuccess(t *testing.T) {
	exec := &scriptedExecutor{results: []error{errors.New("hw failed"), nil}}
	runner := New(baseConfig(), nil, WithPlatform("darwin"), WithExecutor(exec))

	result, err := runner.Encode(context.Background(), "in.mp4", "out.mp4", threeZones())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if result.Winner != "HW+aac" {
		t.Fatalf("unexpected winner: %q", result.Winner)
	}
	if len(result.Attempted) != 2 {
		t.Fatalf("unexpected attempts: %v", result.Attempted)
	}
	if !result.AudioUpgraded {
		t.Fatal("copy request satisfied by aac must flag AudioUpgraded")
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 executor calls, got %d", len(exec.calls))
	}
}

func TestEncodeArgumentContract(t *testing.T) {
	exec := &scriptedExecutor{}
	runner := New(baseConfig(), nil, WithPlatform("linux"), WithExecutor(exec))

	if _, err := runner.Encode(context.Background(), "in.mp4", "out.mp4", threeZones()); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	args := strings.Join(exec.calls[0], " ")
	for _, fragment := range []string{
		"-y", "-i in.mp4", "-vf delogo=",
		"-c:v libx264 -crf 18 -preset veryfast",
		"-c:a copy",
		"-movflags +faststart",
	} {
		if !strings.Contains(args, fragment) {
			t.Fatalf("arguments missing %q: %s", fragment, args)
		}
	}
	if exec.calls[0][len(exec.calls[0])-1] != "out.mp4" {
		t.Fatalf("output not last argument: %v", exec.calls[0])
	}
}

func TestEncodeAllAttemptsFailing(t *testing.T) {
	exec := &scriptedExecutor{results: []error{errors.New("a"), errors.New("b")}}
	runner := New(baseConfig(), nil, WithPlatform("linux"), WithExecutor(exec))

	result, err := runner.Encode(context.Background(), "in.mp4", "out.mp4", threeZones())
	if err == nil {
		t.Fatal("expected error when all attempts fail")
	}
	if result.Winner != "" {
		t.Fatalf("unexpected winner: %q", result.Winner)
	}
	if len(result.Attempted) != 2 {
		t.Fatalf("expected both rungs attempted: %v", result.Attempted)
	}
}

func TestEncodeWithoutZonesIsConfigError(t *testing.T) {
	runner := New(baseConfig(), nil, WithExecutor(&scriptedExecutor{}))
	if _, err := runner.Encode(context.Background(), "in.mp4", "out.mp4", nil); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestNonMP4FormatSkipsFaststart(t *testing.T) {
	cfg := baseConfig()
	cfg.Format = "webm"
	exec := &scriptedExecutor{}
	runner := New(cfg, nil, WithPlatform("linux"), WithExecutor(exec))

	if _, err := runner.Encode(context.Background(), "in.webm", "out.webm", threeZones()); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.Join(exec.calls[0], " "), "faststart") {
		t.Fatalf("faststart must be mp4-only: %v", exec.calls[0])
	}
}

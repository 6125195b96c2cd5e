package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ffmpegFrameSource extracts evenly spaced frames with the encoder binary and
// its sibling probe tool. One encoder invocation per video.
type ffmpegFrameSource struct {
	ffmpeg  string
	ffprobe string
}

func newFFmpegFrameSource(encoderBinary string) *ffmpegFrameSource {
	return &ffmpegFrameSource{
		ffmpeg:  encoderBinary,
		ffprobe: ProbeBinaryFor(encoderBinary),
	}
}

// ProbeBinaryFor derives the probe tool path from the encoder path so a
// custom encoder location keeps both tools side by side.
func ProbeBinaryFor(encoderBinary string) string {
	dir, base := filepath.Split(encoderBinary)
	if strings.Contains(base, "ffmpeg") {
		return dir + strings.Replace(base, "ffmpeg", "ffprobe", 1)
	}
	return "ffprobe"
}

func (s *ffmpegFrameSource) Sample(ctx context.Context, videoPath string, count int) ([]image.Image, error) {
	if count < 1 {
		count = 1
	}
	total, duration := s.probe(ctx, videoPath)

	tempDir, err := os.MkdirTemp("", "sorapipe-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	pattern := filepath.Join(tempDir, "frame_%04d.png")

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", videoPath}
	switch {
	case total > 0 && total <= count:
		// Short clip: take every frame.
		args = append(args, "-vsync", "0")
	case total > 0:
		exprs := make([]string, 0, count)
		for i := 0; i < count; i++ {
			idx := total * (2*i + 1) / (2 * count)
			exprs = append(exprs, fmt.Sprintf("eq(n\\,%d)", idx))
		}
		args = append(args, "-vf", "select='"+strings.Join(exprs, "+")+"'", "-vsync", "0")
	case duration > 0:
		args = append(args, "-vf", fmt.Sprintf("fps=%g", float64(count)/duration), "-vsync", "0")
	}
	args = append(args, "-frames:v", strconv.Itoa(count), pattern)

	cmd := exec.CommandContext(ctx, s.ffmpeg, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract frames: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		file, err := os.Open(filepath.Join(tempDir, name))
		if err != nil {
			continue
		}
		img, _, decodeErr := image.Decode(file)
		file.Close()
		if decodeErr != nil {
			continue
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// probe returns the stream frame count and duration; zero values mean the
// probe could not tell.
func (s *ffmpegFrameSource) probe(ctx context.Context, videoPath string) (int, float64) {
	cmd := exec.CommandContext(ctx, s.ffprobe, //nolint:gosec
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,duration,avg_frame_rate",
		"-of", "json",
		videoPath)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0
	}

	var payload struct {
		Streams []struct {
			NBFrames     string `json:"nb_frames"`
			Duration     string `json:"duration"`
			AvgFrameRate string `json:"avg_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &payload); err != nil || len(payload.Streams) == 0 {
		return 0, 0
	}
	stream := payload.Streams[0]

	duration, _ := strconv.ParseFloat(stream.Duration, 64)
	if total, err := strconv.Atoi(stream.NBFrames); err == nil && total > 0 {
		return total, duration
	}
	if duration > 0 {
		if fps := parseRate(stream.AvgFrameRate); fps > 0 {
			return int(duration * fps), duration
		}
	}
	return 0, duration
}

func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

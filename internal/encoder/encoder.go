// Package encoder drives the external encoder binary for the blur pass. It
// composes the delogo filter chain and walks a deterministic attempt ladder
// from hardware encoding down to software with re-encoded audio.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"sorapipe/internal/config"
	"sorapipe/internal/logging"
	"sorapipe/internal/services"
)

// Attempt is one rung of the encode ladder. Label names the video encoder
// class (HW or SW); Audio is the audio handling for this rung.
type Attempt struct {
	Label     string
	Audio     string
	VideoArgs []string
	AudioArgs []string
}

// Result describes a finished encode.
type Result struct {
	Output string
	// Attempted lists the ladder labels tried, in order, winner last.
	Attempted []string
	Winner    string
	// AudioUpgraded is set when audio copy was requested but the winning
	// attempt re-encoded to AAC.
	AudioUpgraded bool
	// VCodecUpgraded is set when vcodec=copy was silently promoted to
	// libx264 (stream copy cannot carry a filter chain).
	VCodecUpgraded bool
}

// Executor abstracts encoder invocation for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithPlatform overrides the detected OS for ladder selection (tests).
func WithPlatform(goos string) Option {
	return func(r *Runner) {
		if goos != "" {
			r.platform = goos
		}
	}
}

// Runner encodes single files according to the encoder configuration.
type Runner struct {
	cfg      config.Encoder
	platform string
	exec     Executor
	logger   *slog.Logger
}

// New constructs a runner for the given encoder configuration.
func New(cfg config.Encoder, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		platform: runtime.GOOS,
		exec:     commandExecutor{},
		logger:   logging.NewComponentLogger(logger, "encoder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FilterChain builds the video filter: one delogo per zone, the configured
// post chain, then a yuv420p pixel-format cap.
func FilterChain(zones []config.Zone, postChain string) string {
	parts := make([]string, 0, len(zones)+2)
	for _, zone := range zones {
		parts = append(parts, fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d:show=0", zone.X, zone.Y, zone.W, zone.H))
	}
	if chain := strings.TrimSpace(postChain); chain != "" {
		parts = append(parts, chain)
	}
	parts = append(parts, "format=yuv420p")
	return strings.Join(parts, ",")
}

// Ladder returns the deterministic attempt sequence for the configuration.
// Hardware rungs appear only for vcodec=auto_hw on macOS; a requested audio
// copy always precedes its AAC fallback.
func (r *Runner) Ladder() ([]Attempt, bool) {
	vcodec := r.cfg.VCodec
	upgraded := false
	if vcodec == "copy" {
		vcodec = "libx264"
		upgraded = true
	}

	type rung struct {
		label string
		args  []string
	}
	var videos []rung
	if vcodec == "auto_hw" && r.platform == "darwin" {
		videos = append(videos, rung{"HW", []string{"-c:v", "h264_videotoolbox", "-b:v", "0", "-crf", fmt.Sprint(r.cfg.CRF)}})
	}
	videos = append(videos, rung{"SW", []string{"-c:v", "libx264", "-crf", fmt.Sprint(r.cfg.CRF), "-preset", r.cfg.Preset}})

	var audios []rung
	if r.cfg.CopyAudio {
		audios = append(audios, rung{"copy", []string{"-c:a", "copy"}})
	}
	audios = append(audios, rung{"aac", []string{"-c:a", "aac", "-b:a", "192k"}})

	attempts := make([]Attempt, 0, len(videos)*len(audios))
	for _, video := range videos {
		for _, audio := range audios {
			attempts = append(attempts, Attempt{
				Label:     video.label,
				Audio:     audio.label,
				VideoArgs: video.args,
				AudioArgs: audio.args,
			})
		}
	}
	return attempts, upgraded
}

// Encode runs the ladder against one input file, stopping at the first rung
// that succeeds. All rungs failing is an external tool error.
func (r *Runner) Encode(ctx context.Context, input, output string, zones []config.Zone) (Result, error) {
	if len(zones) == 0 {
		return Result{}, services.Wrap(services.ErrConfiguration, "blur", "encode", "no delogo zones configured", nil)
	}

	chain := FilterChain(zones, r.cfg.PostChain)
	attempts, upgraded := r.Ladder()
	result := Result{Output: output, VCodecUpgraded: upgraded}
	if upgraded {
		r.logger.Info("vcodec copy is incompatible with delogo, using libx264")
	}

	var lastErr error
	for _, attempt := range attempts {
		result.Attempted = append(result.Attempted, attempt.Label)
		args := r.arguments(input, output, chain, attempt)

		err := r.exec.Run(ctx, r.cfg.Binary, args, func(line string) {
			r.logger.Debug("encoder output", logging.String("line", line))
		})
		if err == nil {
			result.Winner = attempt.Label + "+" + attempt.Audio
			result.AudioUpgraded = r.cfg.CopyAudio && attempt.Audio == "aac"
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		r.logger.Warn("encode attempt failed",
			logging.String("attempt", attempt.Label+"+"+attempt.Audio),
			logging.String("file", input),
			logging.Error(err))
	}
	return result, services.Wrap(services.ErrExternalTool, "blur", "encode", input, lastErr)
}

func (r *Runner) arguments(input, output, chain string, attempt Attempt) []string {
	args := []string{"-y", "-hide_banner", "-i", input, "-vf", chain}
	args = append(args, attempt.VideoArgs...)
	args = append(args, attempt.AudioArgs...)
	if r.cfg.Format == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, output)
}

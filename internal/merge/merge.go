// Package merge concatenates blurred clips into grouped deliverables using
// the external encoder's concat demuxer, falling back to a re-encode when
// stream copy refuses the inputs.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sorapipe/internal/config"
	"sorapipe/internal/fileutil"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// Executor abstracts encoder invocation for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Option configures the stage.
type Option func(*Stage)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Stage) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// Stage merges groups of clips into numbered deliverables.
type Stage struct {
	cfg     *config.Config
	journal *history.Log
	logger  *slog.Logger
	exec    Executor
}

// NewStage constructs the merge stage.
func NewStage(cfg *config.Config, journal *history.Log, logger *slog.Logger, opts ...Option) *Stage {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Stage{
		cfg:     cfg,
		journal: journal,
		logger:  logging.NewComponentLogger(logger, "merge"),
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return "merge" }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.cfg.Merge.GroupSize < 1 {
		return stage.Unhealthy(s.Name(), "group_size must be at least 1")
	}
	if _, err := os.Stat(s.cfg.Paths.MergeSrcDir); err != nil {
		return stage.Unhealthy(s.Name(), "merge source directory missing")
	}
	return stage.Healthy(s.Name())
}

// Execute gathers the sources, partitions them into groups, and concatenates
// each group serially. A merge_finish history record is always written.
func (s *Stage) Execute(ctx context.Context) error {
	files, err := s.gather()
	if err != nil {
		return services.Wrap(services.ErrNotFound, s.Name(), "gather", s.cfg.Paths.MergeSrcDir, err)
	}
	if err := os.MkdirAll(s.cfg.Paths.MergedDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, s.Name(), "create output dir", s.cfg.Paths.MergedDir, err)
	}

	groups := Partition(files, s.cfg.Merge.GroupSize)
	s.logger.Info("merge pass starting",
		logging.Int("files", len(files)),
		logging.Int("groups", len(groups)),
		logging.Int("group_size", s.cfg.Merge.GroupSize))

	failures := 0
	for i, group := range groups {
		if ctx.Err() != nil {
			s.record(false, len(groups))
			return ctx.Err()
		}
		output := filepath.Join(s.cfg.Paths.MergedDir, fmt.Sprintf("merged_%03d.mp4", i+1))
		manifest := filepath.Join(s.cfg.Paths.MergedDir, fmt.Sprintf(".concat_%03d.txt", i+1))
		if err := s.mergeGroup(ctx, group, manifest, output); err != nil {
			failures++
			s.logger.Warn("group merge failed",
				logging.Int("group", i+1),
				logging.Error(err))
		}
	}

	ok := failures == 0
	s.record(ok, len(groups))
	if !ok {
		return services.Wrap(services.ErrStageFailed, s.Name(), "execute", "concat failures", nil)
	}
	return nil
}

func (s *Stage) gather() ([]string, error) {
	pattern := strings.TrimSpace(s.cfg.Merge.Pattern)
	if pattern == "" || pattern == "auto" {
		names, err := fileutil.ListVideos(s.cfg.Paths.MergeSrcDir)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(names))
		for i, name := range names {
			paths[i] = filepath.Join(s.cfg.Paths.MergeSrcDir, name)
		}
		return paths, nil
	}

	matches, err := filepath.Glob(filepath.Join(s.cfg.Paths.MergeSrcDir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Partition splits files into contiguous groups of size; the last group may
// be short. A non-positive size yields one group per file.
func Partition(files []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var groups [][]string
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		groups = append(groups, files[start:end])
	}
	return groups
}

// mergeGroup writes the concat manifest, tries a stream-copy concat, then a
// re-encode. The manifest is removed regardless of outcome.
func (s *Stage) mergeGroup(ctx context.Context, group []string, manifest, output string) error {
	if err := writeManifest(manifest, group); err != nil {
		return err
	}
	defer os.Remove(manifest)

	copyArgs := concatArgs(manifest, []string{"-c", "copy"}, output)
	if err := s.exec.Run(ctx, s.cfg.Encoder.Binary, copyArgs, s.forwardLine); err == nil {
		s.logger.Info("group merged", logging.String("output", output), logging.String("mode", "copy"))
		return nil
	} else if ctx.Err() != nil {
		return err
	}

	s.logger.Info("stream copy refused, re-encoding", logging.String("output", output))
	encodeArgs := concatArgs(manifest, []string{
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "20",
		"-c:a", "aac", "-b:a", "160k",
	}, output)
	if err := s.exec.Run(ctx, s.cfg.Encoder.Binary, encodeArgs, s.forwardLine); err != nil {
		return services.Wrap(services.ErrExternalTool, s.Name(), "concat", output, err)
	}
	s.logger.Info("group merged", logging.String("output", output), logging.String("mode", "reencode"))
	return nil
}

func (s *Stage) forwardLine(line string) {
	s.logger.Debug("encoder output", logging.String("line", line))
}

func (s *Stage) record(ok bool, groups int) {
	if s.journal == nil {
		return
	}
	err := s.journal.Append("merge_finish", map[string]any{
		"ok":         ok,
		"groups":     groups,
		"group_size": s.cfg.Merge.GroupSize,
		"src":        s.cfg.Paths.MergeSrcDir,
	})
	if err != nil {
		s.logger.Warn("history append failed", logging.Error(err))
	}
}

func concatArgs(manifest string, codec []string, output string) []string {
	args := []string{"-y", "-hide_banner", "-f", "concat", "-safe", "0", "-i", manifest}
	args = append(args, codec...)
	return append(args, output)
}

// writeManifest creates the concat demuxer file list. Paths are absolute and
// single-quote escaped.
func writeManifest(path string, group []string) error {
	var builder strings.Builder
	for _, input := range group {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("resolve input %s: %w", input, err)
		}
		fmt.Fprintf(&builder, "file '%s'\n", EscapeConcatPath(abs))
	}
	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// EscapeConcatPath escapes single quotes for the concat demuxer file list.
func EscapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks missing or invalid configuration. Fatal to a stage.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing binary or input directory. Non-retryable.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRunning marks a supervisor or scenario concurrency violation.
	ErrAlreadyRunning = errors.New("already running")
	// ErrStageFailed marks a non-zero exit from a stage worker.
	ErrStageFailed = errors.New("stage failed")
	// ErrExternalTool marks a failure launching or driving an external binary.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransient marks per-entry filesystem errors that are logged and skipped.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Fatal reports whether an error should abort the running scenario rather
// than be absorbed as a per-entry transient.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTransient)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

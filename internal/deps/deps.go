// Package deps checks the availability of the external tools the pipeline
// shells out to: the encoder binaries, the browser, and the worker scripts.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"sorapipe/internal/config"
	"sorapipe/internal/detect"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := strings.TrimSpace(cfg.Encoder.Binary)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return []Requirement{
		{Name: "ffmpeg", Command: ffmpeg, Description: "Blur and merge encoding"},
		{Name: "ffprobe", Command: detect.ProbeBinaryFor(ffmpeg), Description: "Frame sampling for detection", Optional: true},
		{Name: "browser", Command: cfg.Browser.Binary, Description: "Generator session", Optional: true},
		{Name: "autogen worker", Command: cfg.Workers.Autogen.Entry, Description: "Prompt submission script", Optional: true},
		{Name: "download worker", Command: cfg.Workers.Download.Entry, Description: "Draft scraping script", Optional: true},
		{Name: "upload worker", Command: cfg.Workers.Upload.Entry, Description: "Publishing script", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands containing a path separator are stat'ed directly; bare names
// resolve through PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if strings.ContainsRune(cmd, os.PathSeparator) {
			if _, err := os.Stat(cmd); err != nil {
				status.Detail = fmt.Sprintf("file %q not found", cmd)
				results = append(results, status)
				continue
			}
		} else if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

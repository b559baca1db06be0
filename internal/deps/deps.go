// Package deps reports whether the external tools and disk space a pipeline
// run relies on are available.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"gardenpipe/internal/config"
)

// Requirement defines an external dependency gardenpipe relies on.
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

// Requirements lists the binaries the configured pipeline will invoke.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{
		{Name: "uvx", Command: "uvx", Description: "Runs WhisperX for audio transcription"},
		{Name: "FFmpeg", Command: cfg.Transcription.FFmpegBinary, Description: "Extracts audio from video inputs"},
		{Name: "FFprobe", Command: cfg.Transcription.FFprobeBinary, Description: "Reads audio metadata", Optional: true},
		{Name: "git", Command: cfg.Git.GitBinary, Description: "Commits and pushes generated content"},
		{Name: "GitHub CLI", Command: cfg.Git.GHBinary, Description: "Opens pull requests", Optional: !cfg.Git.CreatePR},
	}
	if cfg.Pipeline.EnableSiteBuild && len(cfg.Pipeline.BuildCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "Site build",
			Command:     cfg.Pipeline.BuildCommand[0],
			Description: "Builds the static site before publishing",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
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
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the unavailable, non-optional entries.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

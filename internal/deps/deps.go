package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"callsight/internal/config"
)

// Requirement defines an external dependency callsight relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the configured adapters execute. uvx runs
// WhisperX and, for the local diarization backend, pyannote.
func Requirements(cfg *config.Config) []Requirement {
	uvxDescription := "Runs WhisperX"
	if cfg.Diarization.Backend != config.DiarizationBackendSidecar {
		uvxDescription = "Runs WhisperX and pyannote"
	}
	return []Requirement{
		{Name: "uvx", Command: "uvx", Description: uvxDescription},
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Extracts 16 kHz mono WAV for transcription"},
	}
}

// Check evaluates Requirements(cfg) and appends the optional ffprobe lookup.
func Check(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	return append(results, CheckFFprobe(cfg.FFmpegBinary()))
}

// MissingRequired returns the required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
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
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

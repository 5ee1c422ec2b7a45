package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFprobe reports the ffprobe binary used to validate uploads.
//
// A static ffmpeg build usually ships ffprobe in the same directory, so an
// ffprobe next to the resolved ffmpeg binary is preferred over the one on
// PATH. ffprobe is optional: without it uploads are passed to the pipeline
// unchecked.
func CheckFFprobe(ffmpegCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Checks uploads for an audio stream",
		Optional:    true,
	}

	ffmpegBinary := strings.TrimSpace(ffmpegCommand)
	if ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			if candidate, ok := siblingBinary(resolved, "ffprobe"); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	ffprobeName := "ffprobe"
	if ffprobePath, err := exec.LookPath(ffprobeName); err == nil {
		result.Command = ffprobePath
		result.Available = true
		return result
	}

	result.Command = ffprobeName
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", ffprobeName)
	return result
}

func siblingBinary(path, name string) (string, bool) {
	if path == "" {
		return "", false
	}
	dir := filepath.Dir(path)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dir, name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

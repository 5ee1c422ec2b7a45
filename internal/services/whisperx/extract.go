package whisperx

import (
	"fmt"
	"strconv"
)

// buildExtractArgs converts source audio into a mono 16kHz WAV. A negative
// duration extracts from start to the end of the input.
func buildExtractArgs(source string, startSec, durationSec float64, dest string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
	}
	if startSec > 0 {
		args = append(args, "-ss", formatSeconds(startSec))
	}
	if durationSec >= 0 {
		args = append(args, "-t", formatSeconds(durationSec))
	}
	args = append(args,
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	)
	return args
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

func validateRange(start, end float64) error {
	if start < 0 {
		return fmt.Errorf("invalid start %.3f", start)
	}
	if end <= start {
		return fmt.Errorf("invalid range %.3f-%.3f", start, end)
	}
	return nil
}

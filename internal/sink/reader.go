package sink

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"callsight/internal/pipeline"
)

// maxFrameBytes bounds one data line; summary frames with long transcripts
// exceed bufio's default.
const maxFrameBytes = 8 << 20

// ErrStop ends ReadFrames early without an error.
var ErrStop = errors.New("stop reading frames")

// ReadFrames decodes an SSE stream produced by SSE and calls fn for every
// event in order. Comment lines are skipped. Multi-line data fields are
// joined with newlines. It returns nil at EOF or when fn returns ErrStop.
func ReadFrames(r io.Reader, fn func(pipeline.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var data strings.Builder
	hasData := false
	dispatch := func() error {
		if !hasData {
			return nil
		}
		event, err := pipeline.DecodeEvent([]byte(data.String()))
		data.Reset()
		hasData = false
		if err != nil {
			return err
		}
		return fn(event)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := parseLine(line)
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := dispatch(); err != nil && !errors.Is(err, ErrStop) {
		return err
	}
	return nil
}

func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = strings.TrimPrefix(line[idx+1:], " ")
	return field, value
}

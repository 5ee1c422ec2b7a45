package sink

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"callsight/internal/detect"
	"callsight/internal/pipeline"
	"callsight/internal/summary"
)

// Terminal renders events to a local display as they arrive.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

// NewTerminal renders to out, with ANSI colors when out is a terminal.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, colorize: ShouldColorize(out)}
}

// Emit renders event synchronously.
func (t *Terminal) Emit(_ context.Context, event pipeline.Event) error {
	lines, err := t.render(event)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.out, strings.Join(lines, "\n")+"\n\n"); err != nil {
		return fmt.Errorf("%w: terminal write: %w", ErrDelivery, err)
	}
	return nil
}

func (t *Terminal) render(event pipeline.Event) ([]string, error) {
	switch payload := event.Result.(type) {
	case pipeline.TranscriptionResult:
		return t.section(event.Step, string(payload)), nil
	case pipeline.DiarizationResult:
		return t.diarization(payload), nil
	case pipeline.SpeakingSpeedResult:
		return t.speeds(payload), nil
	case pipeline.PIIResult:
		return t.section(event.Step,
			RenderStatusLine("PII detected", detectedKind(payload.Detected), yesNo(payload.Detected), t.colorize),
			"Masked text:",
			payload.MaskedText,
		), nil
	case pipeline.ProfanityResult:
		return t.section(event.Step,
			RenderStatusLine("Profanity detected", detectedKind(payload.Detected), yesNo(payload.Detected), t.colorize),
			"Censored text:",
			payload.CensoredText,
		), nil
	case pipeline.RequiredPhrasesResult:
		kind := StatusWarn
		if payload.Present {
			kind = StatusOK
		}
		phrases := "none"
		if len(payload.Phrases) > 0 {
			phrases = strings.Join(payload.Phrases, ", ")
		}
		return t.section(event.Step,
			RenderStatusLine("Phrases present", kind, yesNo(payload.Present), t.colorize),
			RenderStatusLine("Matched", StatusInfo, phrases, t.colorize),
		), nil
	case pipeline.SentimentResult:
		return t.section(event.Step,
			RenderStatusLine("Overall", sentimentKind(payload.Overall), payload.Overall, t.colorize),
			RenderStatusLine("Polarity", StatusInfo, summary.FormatNumber(payload.Polarity), t.colorize),
			RenderStatusLine("Subjectivity", StatusInfo, summary.FormatNumber(payload.Subjectivity), t.colorize),
		), nil
	case pipeline.CategoryResult:
		return t.section(event.Step,
			RenderStatusLine("Call category", StatusInfo, payload.Category, t.colorize),
		), nil
	case pipeline.SummaryResult:
		return t.section(event.Step,
			RenderTable("Summary of Analysis", payload.Table.Columns(), payload.Table.Cells(), nil),
		), nil
	case pipeline.ErrorResult:
		return []string{RenderStatusLine("Error", StatusError, string(payload), t.colorize)}, nil
	case pipeline.CompleteResult:
		return []string{RenderStatusLine("Done", StatusOK, string(payload), t.colorize)}, nil
	default:
		return nil, fmt.Errorf("terminal: no renderer for %s event (%T)", event.Step, event.Result)
	}
}

func (t *Terminal) section(step pipeline.Step, body ...string) []string {
	return append(RenderSectionHeader(step.DisplayName(), t.colorize), body...)
}

func (t *Terminal) diarization(d pipeline.DiarizationResult) []string {
	rows := make([][]string, 0, len(d.Segments))
	for _, seg := range d.Segments {
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", seg.Start),
			fmt.Sprintf("%.2f", seg.End),
			SpeakerLabel(seg.Speaker),
		})
	}
	ratio := "N/A (only one speaker detected)"
	if d.SpeakingRatio.Valid {
		ratio = summary.FormatNumber(d.SpeakingRatio.Value)
	}
	metrics := [][]string{
		{"Speaking ratio", ratio},
		{"Interruptions", fmt.Sprint(d.Interruptions)},
		{"Time to first token (s)", summary.FormatNumber(d.TimeToFirstToken)},
	}
	return t.section(pipeline.StepDiarization,
		RenderTable("Speaker Segments", []string{"Start Time (s)", "End Time (s)", "Speaker"}, rows,
			[]Alignment{AlignRight, AlignRight, AlignLeft}),
		RenderTable("Call Metrics", []string{"Metric", "Value"}, metrics, []Alignment{AlignLeft, AlignRight}),
	)
}

func (t *Terminal) speeds(speeds pipeline.SpeakingSpeedResult) []string {
	ids := make([]string, 0, len(speeds))
	for id := range speeds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{SpeakerLabel(id), summary.FormatNumber(speeds[id])})
	}
	return t.section(pipeline.StepSpeakingSpeed,
		RenderTable("Speaker Speeds", []string{"Speaker", "Speed (words per minute)"}, rows,
			[]Alignment{AlignLeft, AlignRight}),
	)
}

func detectedKind(detected bool) StatusKind {
	if detected {
		return StatusWarn
	}
	return StatusOK
}

func sentimentKind(overall string) StatusKind {
	switch overall {
	case detect.SentimentPositive:
		return StatusOK
	case detect.SentimentNegative:
		return StatusWarn
	default:
		return StatusInfo
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

package speaker

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"callsight/internal/logging"
	"callsight/internal/observe"
)

// Record accumulates what one speaker said across all of their segments.
type Record struct {
	WordCount int     `json:"word_count"`
	Duration  float64 `json:"duration"`
	Text      string  `json:"text"`

	// micros is the exact running total behind Duration.
	micros int64
}

func toMicros(seconds float64) int64 {
	return int64(math.Round(seconds * 1e6))
}

// WPM returns words per minute, or 0 when no time was attributed.
func (r Record) WPM() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.WordCount) / r.Duration * 60
}

// Records maps speaker labels to their accumulated speech.
type Records map[string]Record

// add only ever grows a record: counts and durations are summed and text is
// appended with a single separating space. Durations are summed as integer
// microseconds so totals do not depend on segment order.
func (r Records) add(label string, words int, duration float64, text string) {
	micros := toMicros(duration)
	rec, ok := r[label]
	if !ok {
		r[label] = Record{WordCount: words, Duration: float64(micros) / 1e6, Text: text, micros: micros}
		return
	}
	rec.WordCount += words
	rec.micros += micros
	rec.Duration = float64(rec.micros) / 1e6
	switch {
	case rec.Text == "":
		rec.Text = text
	case text != "":
		rec.Text = rec.Text + " " + text
	}
	r[label] = rec
}

// Speakers returns the labels in sorted order.
func (r Records) Speakers() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Speeds returns words per minute per speaker.
func (r Records) Speeds() map[string]float64 {
	speeds := make(map[string]float64, len(r))
	for label, rec := range r {
		speeds[label] = rec.WPM()
	}
	return speeds
}

// RangeTranscriber transcribes part of an audio file.
type RangeTranscriber interface {
	TranscribeRange(ctx context.Context, audioPath string, start, end float64) (string, error)
}

// Aggregator builds per-speaker Records from diarized segments.
type Aggregator struct {
	transcriber RangeTranscriber
	logger      *slog.Logger
	metrics     *observe.Metrics
}

// NewAggregator creates an aggregator backed by transcriber. Dropped segments
// are counted on metrics, which may be nil.
func NewAggregator(transcriber RangeTranscriber, logger *slog.Logger, metrics *observe.Metrics) *Aggregator {
	return &Aggregator{
		transcriber: transcriber,
		logger:      logging.NewComponentLogger(logger, "speaker"),
		metrics:     metrics,
	}
}

// Aggregate transcribes every segment in the given order and accumulates the
// result into the owning speaker's record. A segment whose transcription fails
// is logged and skipped. Totals do not depend on segment order; the text
// follows it.
//
// When ctx is cancelled, the records gathered so far are returned with the
// context error.
func (a *Aggregator) Aggregate(ctx context.Context, audioPath string, segments []Segment) (Records, error) {
	records := make(Records)
	logger := logging.WithContext(ctx, a.logger)
	for idx, seg := range segments {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		text, err := a.transcriber.TranscribeRange(ctx, audioPath, seg.Start, seg.End)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return records, ctxErr
			}
			logging.WarnWithContext(logger, "segment transcription failed; segment dropped", "segment_transcription_failed",
				logging.Int("segment_index", idx),
				logging.String("speaker", seg.Speaker),
				logging.Float64("start_time", seg.Start),
				logging.Float64("end_time", seg.End),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check whisperx and ffmpeg output for this range"),
				logging.String(logging.FieldImpact, "speaker totals exclude this segment"),
			)
			a.metrics.RecordSegmentFailure(ctx, seg.Speaker)
			continue
		}
		text = strings.TrimSpace(text)
		records.add(seg.Speaker, len(strings.Fields(text)), seg.Duration(), text)
	}
	logger.Debug("speaker aggregation finished",
		logging.Int("segments", len(segments)),
		logging.Int("speakers", len(records)),
	)
	return records, nil
}

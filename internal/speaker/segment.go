package speaker

// Segment is one diarized turn: a speaker label and a time range in seconds.
// Field order matches the diarization wire payload.
type Segment struct {
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
	Speaker string  `json:"speaker"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Valid reports whether the segment has a speaker and a positive length.
func (s Segment) Valid() bool {
	return s.Speaker != "" && s.Start >= 0 && s.Start < s.End
}

// Clean drops invalid segments, preserving order. Diarization adapters call
// it so downstream code can rely on Start < End.
func Clean(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Valid() {
			out = append(out, seg)
		}
	}
	return out
}

// OneSpeakerRatio is reported instead of a ratio when fewer than two speakers talk.
const OneSpeakerRatio = "N/A (only one speaker detected)"

// Metrics are the call-level figures derived from diarization segments.
type Metrics struct {
	// Ratio is the first speaker's talk time over the second's, in first-seen
	// order. It is nil when fewer than two speakers were detected.
	Ratio            *float64
	Interruptions    int
	TimeToFirstToken float64
}

// ComputeMetrics walks segments in order. An interruption is a speaker change
// whose start precedes the previous segment's end.
func ComputeMetrics(segments []Segment) Metrics {
	var m Metrics
	totals := make(map[string]float64)
	order := make([]string, 0, 2)
	var prev *Segment
	for i := range segments {
		seg := segments[i]
		if _, seen := totals[seg.Speaker]; !seen {
			order = append(order, seg.Speaker)
		}
		totals[seg.Speaker] += seg.Duration()
		if prev == nil {
			m.TimeToFirstToken = seg.Start
		} else if prev.Speaker != seg.Speaker && seg.Start < prev.End {
			m.Interruptions++
		}
		prev = &segments[i]
	}
	if len(order) >= 2 && totals[order[1]] > 0 {
		ratio := totals[order[0]] / totals[order[1]]
		m.Ratio = &ratio
	}
	return m
}

package speaker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"callsight/internal/observe"
)

type scriptedTranscriber struct {
	texts map[float64]string
	fail  map[float64]bool
	calls int
}

func (s *scriptedTranscriber) TranscribeRange(_ context.Context, _ string, start, _ float64) (string, error) {
	s.calls++
	if s.fail[start] {
		return "", fmt.Errorf("segment at %.1f failed", start)
	}
	return s.texts[start], nil
}

func TestAggregateAccumulatesPerSpeaker(t *testing.T) {
	tr := &scriptedTranscriber{texts: map[float64]string{
		0:  "hello how can I help",
		5:  "my bill is wrong",
		9:  " let me check ",
		14: "thanks",
	}}
	segments := []Segment{
		{Start: 0, End: 4, Speaker: "SPEAKER_00"},
		{Start: 5, End: 8, Speaker: "SPEAKER_01"},
		{Start: 9, End: 12, Speaker: "SPEAKER_00"},
		{Start: 14, End: 15, Speaker: "SPEAKER_01"},
	}

	records, err := NewAggregator(tr, nil, nil).Aggregate(context.Background(), "call.wav", segments)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	agent := records["SPEAKER_00"]
	if agent.WordCount != 8 || agent.Duration != 7 || agent.Text != "hello how can I help let me check" {
		t.Fatalf("unexpected agent record: %+v", agent)
	}
	caller := records["SPEAKER_01"]
	if caller.WordCount != 5 || caller.Duration != 4 || caller.Text != "my bill is wrong thanks" {
		t.Fatalf("unexpected caller record: %+v", caller)
	}
	if tr.calls != 4 {
		t.Fatalf("expected one transcription per segment, got %d", tr.calls)
	}
}

func TestAggregateDropsFailedSegments(t *testing.T) {
	tr := &scriptedTranscriber{
		texts: map[float64]string{0: "one two", 3: "three"},
		fail:  map[float64]bool{3: true},
	}
	segments := []Segment{
		{Start: 0, End: 2, Speaker: "A"},
		{Start: 3, End: 6, Speaker: "A"},
	}
	records, err := NewAggregator(tr, nil, nil).Aggregate(context.Background(), "call.wav", segments)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got := records["A"]; got.WordCount != 2 || got.Duration != 2 {
		t.Fatalf("expected failed segment to be excluded, got %+v", got)
	}
}

func TestAggregateZeroSegments(t *testing.T) {
	records, err := NewAggregator(&scriptedTranscriber{}, nil, nil).Aggregate(context.Background(), "call.wav", nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty, non-nil records, got %#v", records)
	}
}

func TestAggregateTotalsIndependentOfOrder(t *testing.T) {
	texts := map[float64]string{0: "a b c", 2: "d e", 4: "f", 6: "g h i j", 8: ""}
	forward := []Segment{
		{Start: 0, End: 1.5, Speaker: "X"},
		{Start: 2, End: 3, Speaker: "Y"},
		{Start: 4, End: 5.25, Speaker: "X"},
		{Start: 6, End: 7, Speaker: "Y"},
		{Start: 8, End: 9, Speaker: "X"},
	}
	reversed := make([]Segment, len(forward))
	for i, seg := range forward {
		reversed[len(forward)-1-i] = seg
	}

	a, err := NewAggregator(&scriptedTranscriber{texts: texts}, nil, nil).Aggregate(context.Background(), "c.wav", forward)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewAggregator(&scriptedTranscriber{texts: texts}, nil, nil).Aggregate(context.Background(), "c.wav", reversed)
	if err != nil {
		t.Fatal(err)
	}
	for _, label := range []string{"X", "Y"} {
		if a[label].WordCount != b[label].WordCount || a[label].Duration != b[label].Duration {
			t.Fatalf("speaker %s totals differ: %+v vs %+v", label, a[label], b[label])
		}
	}
}

func TestAggregateDurationExactAcrossOrders(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 0.1, Speaker: "A"},
		{Start: 1, End: 1.7, Speaker: "A"},
		{Start: 3, End: 3.3, Speaker: "A"},
	}
	texts := map[float64]string{0: "one", 1: "two", 3: "three"}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}

	var want Record
	for i, order := range orders {
		ordered := make([]Segment, 0, len(order))
		for _, idx := range order {
			ordered = append(ordered, segments[idx])
		}
		records, err := NewAggregator(&scriptedTranscriber{texts: texts}, nil, nil).Aggregate(context.Background(), "c.wav", ordered)
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		got := records["A"]
		if got.Duration != 1.1 {
			t.Fatalf("order %v: duration = %v, want 1.1", order, got.Duration)
		}
		if i == 0 {
			want = got
			continue
		}
		if got.WPM() != want.WPM() {
			t.Fatalf("order %v: wpm = %v, want %v", order, got.WPM(), want.WPM())
		}
	}
}

func TestAggregateCountsDroppedSegments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	tr := &scriptedTranscriber{
		texts: map[float64]string{0: "hello"},
		fail:  map[float64]bool{2: true, 4: true},
	}
	segments := []Segment{
		{Start: 0, End: 1, Speaker: "SPEAKER_00"},
		{Start: 2, End: 3, Speaker: "SPEAKER_01"},
		{Start: 4, End: 5, Speaker: "SPEAKER_01"},
	}
	if _, err := NewAggregator(tr, nil, metrics).Aggregate(context.Background(), "c.wav", segments); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var dropped int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "callsight.segments.failed" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				if v, _ := dp.Attributes.Value(attribute.Key("speaker")); v.AsString() == "SPEAKER_01" {
					dropped += dp.Value
				}
			}
		}
	}
	if dropped != 2 {
		t.Fatalf("dropped segments for SPEAKER_01 = %d, want 2", dropped)
	}
}

func TestAggregateStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &cancellingTranscriber{cancel: cancel}
	segments := []Segment{
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 1, End: 2, Speaker: "A"},
		{Start: 2, End: 3, Speaker: "A"},
	}
	records, err := NewAggregator(tr, nil, nil).Aggregate(ctx, "c.wav", segments)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if records["A"].WordCount != 1 || tr.calls != 1 {
		t.Fatalf("expected partial records after first segment, got %+v (calls=%d)", records, tr.calls)
	}
}

type cancellingTranscriber struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingTranscriber) TranscribeRange(context.Context, string, float64, float64) (string, error) {
	c.calls++
	c.cancel()
	return "word", nil
}

func TestWPM(t *testing.T) {
	tests := []struct {
		rec  Record
		want float64
	}{
		{Record{WordCount: 20, Duration: 10}, 120},
		{Record{WordCount: 5, Duration: 0}, 0},
		{Record{WordCount: 0, Duration: 30}, 0},
	}
	for _, tc := range tests {
		if got := tc.rec.WPM(); got != tc.want {
			t.Fatalf("WPM(%+v) = %v, want %v", tc.rec, got, tc.want)
		}
	}
	speeds := Records{"A": {WordCount: 20, Duration: 10}, "B": {WordCount: 3}}.Speeds()
	if speeds["A"] != 120 || speeds["B"] != 0 {
		t.Fatalf("unexpected speeds: %v", speeds)
	}
}

func TestComputeMetrics(t *testing.T) {
	segments := []Segment{
		{Start: 1.5, End: 6, Speaker: "SPEAKER_01"},
		{Start: 5, End: 8, Speaker: "SPEAKER_00"},
		{Start: 8, End: 9, Speaker: "SPEAKER_00"},
		{Start: 8.5, End: 10, Speaker: "SPEAKER_01"},
	}
	m := ComputeMetrics(segments)
	if m.TimeToFirstToken != 1.5 {
		t.Fatalf("time to first token = %v", m.TimeToFirstToken)
	}
	if m.Interruptions != 2 {
		t.Fatalf("interruptions = %d", m.Interruptions)
	}
	if m.Ratio == nil || *m.Ratio != 1.5 {
		t.Fatalf("ratio = %v", m.Ratio)
	}

	single := ComputeMetrics([]Segment{{Start: 0, End: 2, Speaker: "A"}})
	if single.Ratio != nil || single.Interruptions != 0 {
		t.Fatalf("unexpected single-speaker metrics: %+v", single)
	}
	if empty := ComputeMetrics(nil); empty.TimeToFirstToken != 0 || empty.Ratio != nil {
		t.Fatalf("unexpected empty metrics: %+v", empty)
	}
}

func TestClean(t *testing.T) {
	got := Clean([]Segment{
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 2, End: 2, Speaker: "A"},
		{Start: 3, End: 1, Speaker: "B"},
		{Start: 1, End: 2, Speaker: ""},
		{Start: 4, End: 5, Speaker: "B"},
	})
	if len(got) != 2 || got[1].Speaker != "B" {
		t.Fatalf("unexpected cleaned segments: %+v", got)
	}
}

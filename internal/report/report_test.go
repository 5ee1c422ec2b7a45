package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"callsight/internal/detect"
	"callsight/internal/history"
	"callsight/internal/pipeline"
	"callsight/internal/summary"
)

func sampleEvents() []pipeline.Event {
	table := summary.Build(summary.Inputs{
		Sentiment: &detect.SentimentResult{Polarity: 0.5, Subjectivity: 0.25, Overall: detect.SentimentPositive},
	}, false)
	return []pipeline.Event{
		pipeline.NewEvent(pipeline.ErrorResult("Diarization failed: sidecar unreachable")),
		pipeline.NewEvent(pipeline.SentimentResult{Polarity: 0.5, Subjectivity: 0.25, Overall: detect.SentimentPositive}),
		pipeline.NewEvent(pipeline.CategoryResult{Category: "Billing"}),
		pipeline.NewEvent(pipeline.SummaryResult{Table: table}),
		pipeline.NewEvent(pipeline.CompleteResult(pipeline.CompletionMessage)),
	}
}

func TestFromEvents(t *testing.T) {
	finished := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	call := FromEvents("s1", "call.wav", pipeline.StatusCompleted, finished, sampleEvents())
	if call.Category != "Billing" || call.Sentiment != detect.SentimentPositive {
		t.Fatalf("unexpected highlights: %+v", call)
	}
	if len(call.Errors) != 1 || !strings.HasPrefix(call.Errors[0], "Diarization failed") {
		t.Fatalf("unexpected errors: %v", call.Errors)
	}
	if !call.HasSummary || len(call.Summary.Rows) != len(summary.RowLabels) {
		t.Fatalf("expected summary table, got %+v", call.Summary)
	}

	record := &history.Record{
		Session: history.Session{ID: "s2", AudioName: "other.wav", Status: pipeline.StatusAborted, FinishedAt: finished},
		Events:  sampleEvents()[:1],
	}
	fromRecord := FromRecord(record)
	if fromRecord.SessionID != "s2" || fromRecord.Status != pipeline.StatusAborted || fromRecord.HasSummary {
		t.Fatalf("unexpected call from record: %+v", fromRecord)
	}
}

func TestWriteWorkbook(t *testing.T) {
	finished := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	calls := []Call{
		FromEvents("s1", "Call One.wav", pipeline.StatusCompleted, finished, sampleEvents()),
		FromEvents("s2", "broken.wav", pipeline.StatusDisconnected, finished, nil),
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := Write(path, calls); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	wantSheets := []string{OverviewSheet, "01 call_one_wav"}
	if len(sheets) != len(wantSheets) {
		t.Fatalf("sheets = %v, want %v", sheets, wantSheets)
	}
	for i, name := range wantSheets {
		if sheets[i] != name {
			t.Fatalf("sheet %d = %q, want %q", i, sheets[i], name)
		}
	}

	overview, err := f.GetRows(OverviewSheet)
	if err != nil {
		t.Fatalf("read overview: %v", err)
	}
	if len(overview) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(overview))
	}
	if strings.Join(overview[0], ",") != strings.Join(OverviewHeaders, ",") {
		t.Fatalf("unexpected header: %v", overview[0])
	}
	first := overview[1]
	if first[0] != "s1" || first[2] != pipeline.StatusCompleted || first[3] != "2026-05-04T10:00:00Z" || first[4] != "Billing" {
		t.Fatalf("unexpected first row: %v", first)
	}
	if first[6] != "Diarization failed: sidecar unreachable" {
		t.Fatalf("unexpected errors cell: %q", first[6])
	}

	rows, err := f.GetRows("01 call_one_wav")
	if err != nil {
		t.Fatalf("read summary sheet: %v", err)
	}
	if len(rows) != len(summary.RowLabels)+1 {
		t.Fatalf("expected %d rows, got %d", len(summary.RowLabels)+1, len(rows))
	}
	if strings.Join(rows[0], ",") != "Analysis,Speaker 1,Speaker 2" {
		t.Fatalf("unexpected summary header: %v", rows[0])
	}
	last := rows[len(rows)-1]
	if last[0] != summary.RowSentiment || !strings.Contains(last[1], "Overall: Positive") {
		t.Fatalf("unexpected sentiment row: %v", last)
	}
}

func TestSheetName(t *testing.T) {
	long := strings.Repeat("x", 60) + ".wav"
	if got := SheetName(0, long); len(got) != maxSheetName || !strings.HasPrefix(got, "01 ") {
		t.Fatalf("unexpected long sheet name %q", got)
	}
	if got := SheetName(11, ""); got != "12 unknown" {
		t.Fatalf("unexpected empty-name sheet %q", got)
	}
}

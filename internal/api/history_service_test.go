package api

import (
	"context"
	"testing"
	"time"

	"callsight/internal/history"
	"callsight/internal/pipeline"
)

type historyStub struct {
	sessions  []history.Session
	record    *history.Record
	lastLimit int
}

func (s *historyStub) List(_ context.Context, limit int) ([]history.Session, error) {
	s.lastLimit = limit
	return s.sessions, nil
}

func (s *historyStub) Get(_ context.Context, id string) (*history.Record, error) {
	if s.record == nil || s.record.ID != id {
		return nil, nil
	}
	return s.record, nil
}

func TestHistoryServiceList(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stub := &historyStub{sessions: []history.Session{{
		ID:         "s1",
		AudioName:  "call.wav",
		Status:     pipeline.StatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}}}
	svc := NewHistoryService(stub)

	items, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if stub.lastLimit != history.DefaultListLimit {
		t.Fatalf("expected default limit, got %d", stub.lastLimit)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.DurationMs != 1500 {
		t.Fatalf("duration = %d", got.DurationMs)
	}
	if got.StartedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("startedAt = %q", got.StartedAt)
	}
	if got.Requested == nil {
		t.Fatal("requested should encode as an empty list")
	}
	if !ParseTime(got.FinishedAt).Equal(started.Add(1500 * time.Millisecond)) {
		t.Fatalf("finishedAt does not round trip: %q", got.FinishedAt)
	}
}

func TestHistoryServiceDescribe(t *testing.T) {
	stub := &historyStub{record: &history.Record{
		Session: history.Session{ID: "s1"},
		Events:  []pipeline.Event{pipeline.NewEvent(pipeline.CompleteResult(pipeline.CompletionMessage))},
	}}
	svc := NewHistoryService(stub)

	detail, err := svc.Describe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail == nil || len(detail.Events) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	missing, err := svc.Describe(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown session, got %+v, %v", missing, err)
	}
}

func TestNilHistoryService(t *testing.T) {
	svc := NewHistoryService(nil)
	items, err := svc.List(context.Background(), 10)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty list, got %v, %v", items, err)
	}
	detail, err := svc.Describe(context.Background(), "x")
	if err != nil || detail != nil {
		t.Fatalf("expected nil detail, got %v, %v", detail, err)
	}
}

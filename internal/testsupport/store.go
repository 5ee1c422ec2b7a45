package testsupport

import (
	"context"
	"testing"
	"time"

	"callsight/internal/config"
	"callsight/internal/history"
	"callsight/internal/pipeline"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveSession stores a completed session with the given events and returns
// its entry.
func SaveSession(t testing.TB, store *history.Store, id string, finished time.Time, events ...pipeline.Event) history.Entry {
	t.Helper()

	entry := history.Entry{
		SessionID:  id,
		AudioName:  id + ".wav",
		Requested:  pipeline.AllStages().Names(),
		Status:     pipeline.StatusCompleted,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Events:     events,
	}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return entry
}

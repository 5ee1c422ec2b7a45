package api

import (
	"context"

	"callsight/internal/history"
)

// HistoryReader abstracts the history queries needed by the API.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Session, error)
	Get(ctx context.Context, id string) (*history.Record, error)
}

// HistoryService exposes read-only history operations returning API DTOs.
type HistoryService struct {
	store HistoryReader
}

// NewHistoryService constructs a HistoryService around the provided reader.
// A nil reader yields a nil service whose methods return empty results.
func NewHistoryService(store HistoryReader) *HistoryService {
	if store == nil {
		return nil
	}
	return &HistoryService{store: store}
}

// List returns the most recently finished sessions.
func (s *HistoryService) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	if s == nil || s.store == nil {
		return []SessionSummary{}, nil
	}
	if limit <= 0 {
		limit = history.DefaultListLimit
	}
	sessions, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromSessions(sessions), nil
}

// Describe fetches a single session with its events, or nil when unknown.
func (s *HistoryService) Describe(ctx context.Context, id string) (*SessionDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	record, err := s.store.Get(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	detail := FromRecord(record)
	return &detail, nil
}

package api

import (
	"time"

	"callsight/internal/deps"
	"callsight/internal/history"
	"callsight/internal/pipeline"
	"callsight/internal/stage"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionSummary describes a stored session in a transport-friendly format.
type SessionSummary struct {
	ID           string   `json:"id"`
	AudioName    string   `json:"audioName"`
	AudioSHA256  string   `json:"audioSha256,omitempty"`
	Requested    []string `json:"requested"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Category     string   `json:"category,omitempty"`
	Sentiment    string   `json:"sentiment,omitempty"`
	EventCount   int      `json:"eventCount"`
	StartedAt    string   `json:"startedAt,omitempty"`
	FinishedAt   string   `json:"finishedAt,omitempty"`
	DurationMs   int64    `json:"durationMs"`
}

// SessionDetail is a session with its event log.
type SessionDetail struct {
	SessionSummary
	Events []pipeline.Event `json:"events"`
}

// StageHealth mirrors adapter readiness reporting.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	Ready          bool               `json:"ready"`
	HistoryEnabled bool               `json:"historyEnabled"`
	HistoryDBPath  string             `json:"historyDbPath,omitempty"`
	LockFilePath   string             `json:"lockFilePath,omitempty"`
	Stages         []StageHealth      `json:"stages"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// HistoryListResponse wraps a collection of sessions.
type HistoryListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// HistoryItemResponse wraps a single session.
type HistoryItemResponse struct {
	Session SessionDetail `json:"session"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromSession converts a stored session row.
func FromSession(s history.Session) SessionSummary {
	requested := s.Requested
	if requested == nil {
		requested = []string{}
	}
	return SessionSummary{
		ID:           s.ID,
		AudioName:    s.AudioName,
		AudioSHA256:  s.AudioSHA256,
		Requested:    requested,
		Status:       s.Status,
		ErrorMessage: s.ErrorMessage,
		Category:     s.Category,
		Sentiment:    s.Sentiment,
		EventCount:   s.EventCount,
		StartedAt:    formatTime(s.StartedAt),
		FinishedAt:   formatTime(s.FinishedAt),
		DurationMs:   s.Duration().Milliseconds(),
	}
}

// FromSessions converts a list of session rows.
func FromSessions(sessions []history.Session) []SessionSummary {
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}

// FromRecord converts a stored session with its events.
func FromRecord(r *history.Record) SessionDetail {
	events := r.Events
	if events == nil {
		events = []pipeline.Event{}
	}
	return SessionDetail{SessionSummary: FromSession(r.Session), Events: events}
}

// StageHealthSlice converts adapter health records.
func StageHealthSlice(records []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(records))
	for _, h := range records {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// DependencyStatuses converts binary availability reports.
func DependencyStatuses(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}

// ParseTime reads a timestamp written by the API; it returns the zero time
// for empty or malformed input.
func ParseTime(value string) time.Time {
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

package history

import (
	"path/filepath"
	"time"

	"callsight/internal/pipeline"
	"callsight/internal/services"
	"callsight/internal/summary"
)

// Entry is a finished session handed to Store.Save.
type Entry struct {
	SessionID   string
	AudioName   string
	AudioSHA256 string
	Requested   []string
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Events      []pipeline.Event
}

// Session is one stored session row.
type Session struct {
	ID           string    `json:"id"`
	AudioName    string    `json:"audio_name"`
	AudioSHA256  string    `json:"audio_sha256,omitempty"`
	Requested    []string  `json:"requested"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Category     string    `json:"category,omitempty"`
	Sentiment    string    `json:"sentiment,omitempty"`
	EventCount   int       `json:"event_count"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long the session ran.
func (s Session) Duration() time.Duration {
	if s.FinishedAt.Before(s.StartedAt) {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Record is a session with its event log.
type Record struct {
	Session
	Events []pipeline.Event `json:"events"`
}

// Summary returns the table carried by the session's summary event.
func (r *Record) Summary() (summary.Table, bool) {
	if r == nil {
		return summary.Table{}, false
	}
	for _, event := range r.Events {
		if s, ok := event.Result.(pipeline.SummaryResult); ok {
			return s.Table, true
		}
	}
	return summary.Table{}, false
}

// highlights extracts the category and overall sentiment for list views.
func highlights(events []pipeline.Event) (category, sentiment string) {
	for _, event := range events {
		switch p := event.Result.(type) {
		case pipeline.CategoryResult:
			category = p.Category
		case pipeline.SentimentResult:
			sentiment = p.Overall
		}
	}
	return category, sentiment
}

// NewEntry describes a finished run of session. runErr is the error Run returned.
func NewEntry(session pipeline.Session, runErr error, started, finished time.Time, events []pipeline.Event) Entry {
	entry := Entry{
		SessionID:  session.ID,
		AudioName:  filepath.Base(session.AudioPath),
		Requested:  session.Requested.Names(),
		Status:     pipeline.RunStatus(runErr),
		StartedAt:  started,
		FinishedAt: finished,
		Events:     events,
	}
	if runErr != nil {
		entry.Error = services.Details(runErr)
	}
	return entry
}

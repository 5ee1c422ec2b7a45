package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"callsight/internal/config"
	"callsight/internal/logging"
	"callsight/internal/pipeline"
)

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 20

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const sessionColumns = "id, audio_name, audio_sha256, requested_json, status, error_message, category, sentiment, event_count, started_at, finished_at"

// Store manages session history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dbPath := strings.TrimSpace(cfg.Paths.HistoryDB)
	if dbPath == "" {
		return nil, errors.New("history database path is not configured")
	}

	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dataSourceName carries the pragmas in the DSN so every pooled connection
// gets them. Write transactions take the lock up front; a deferred
// transaction that upgrades to a writer fails without waiting on busy_timeout.
func dataSourceName(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Save stores a finished session and its events in one transaction.
func (s *Store) Save(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.SessionID) == "" {
		return errors.New("session id is required")
	}
	requested := entry.Requested
	if requested == nil {
		requested = []string{}
	}
	requestedJSON, err := json.Marshal(requested)
	if err != nil {
		return fmt.Errorf("marshal requested stages: %w", err)
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = entry.FinishedAt
	}
	category, sentiment := highlights(entry.Events)

	return retryOnBusy(ctx, func() error {
		return s.saveTx(ctx, entry, string(requestedJSON), category, sentiment)
	})
}

func (s *Store) saveTx(ctx context.Context, entry Entry, requestedJSON, category, sentiment string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.AudioName,
		nullableString(entry.AudioSHA256),
		requestedJSON,
		entry.Status,
		nullableString(entry.Error),
		nullableString(category),
		nullableString(sentiment),
		len(entry.Events),
		formatTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for seq, event := range entry.Events {
		body, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", event.Step, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO session_events (session_id, seq, step, event_json) VALUES (?, ?, ?, ?)`,
			entry.SessionID, seq, string(event.Step), string(body),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// SaveLogged saves entry and logs a warning instead of failing. The session
// result stands whether or not it reaches history.
func (s *Store) SaveLogged(ctx context.Context, entry Entry, logger *slog.Logger) {
	if s == nil {
		return
	}
	if err := s.Save(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "failed to save session history", "history_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database path and permissions"),
			logging.String(logging.FieldImpact, "session will be missing from history"),
		)
	}
}

// List returns the most recently finished sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY finished_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Get fetches a session and its events. It returns nil when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT event_json FROM session_events WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	record := &Record{Session: *session}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := pipeline.DecodeEvent([]byte(body))
		if err != nil {
			return nil, err
		}
		record.Events = append(record.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return record, nil
}

// Prune removes sessions that finished before cutoff and returns how many
// were deleted.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		n, err := s.pruneTx(ctx, cutoff)
		removed = n
		return err
	})
	return removed, err
}

func (s *Store) pruneTx(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_events WHERE session_id IN (SELECT id FROM sessions WHERE finished_at < ?)`, ts,
	); err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE finished_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return removed, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		session      Session
		digest       sql.NullString
		requested    string
		errorMessage sql.NullString
		category     sql.NullString
		sentiment    sql.NullString
		startedRaw   string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&session.ID,
		&session.AudioName,
		&digest,
		&requested,
		&session.Status,
		&errorMessage,
		&category,
		&sentiment,
		&session.EventCount,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(requested), &session.Requested); err != nil {
		return nil, fmt.Errorf("decode requested stages: %w", err)
	}
	session.AudioSHA256 = digest.String
	session.ErrorMessage = errorMessage.String
	session.Category = category.String
	session.Sentiment = sentiment.String
	session.StartedAt = parseTime(startedRaw)
	session.FinishedAt = parseTime(finishedRaw)
	return &session, nil
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var schema = `
CREATE TABLE IF NOT EXISTS net_log_sessions (
    id TEXT PRIMARY KEY,
    capture_mode TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    stopped_at DATETIME,
    event_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS net_log_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    source_id INTEGER NOT NULL,
    source_type TEXT NOT NULL,
    type TEXT NOT NULL,
    phase TEXT NOT NULL,
    time_ms INTEGER NOT NULL,
    params TEXT,
    FOREIGN KEY (session_id) REFERENCES net_log_sessions(id)
);
`

// Event is one row of net_log_events. Params is already-encoded JSON.
type Event struct {
	SourceID   uint64
	SourceType string
	Type       string
	Phase      string
	Time       time.Time
	Params     string
}

// Session is one row of net_log_sessions.
type Session struct {
	ID          string
	CaptureMode string
	Stopped     bool
	EventCount  int
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// Enable WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession records the start of a logging session.
func (s *Store) BeginSession(id, captureMode string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO net_log_sessions (id, capture_mode, started_at) VALUES (?, ?, ?)`,
		id, captureMode, startedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", id, err)
	}
	return nil
}

// InsertEvent appends an event to the given session.
func (s *Store) InsertEvent(sessionID string, e Event) error {
	_, err := s.db.Exec(
		`INSERT INTO net_log_events (session_id, source_id, source_type, type, phase, time_ms, params) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, e.SourceID, e.SourceType, e.Type, e.Phase, e.Time.UnixMilli(), e.Params,
	)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.Type, err)
	}
	return nil
}

// EndSession stamps the stop time and final event count.
func (s *Store) EndSession(id string, stoppedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE net_log_sessions
		 SET stopped_at = ?, event_count = (SELECT COUNT(*) FROM net_log_events WHERE session_id = ?)
		 WHERE id = ?`,
		stoppedAt, id, id,
	)
	if err != nil {
		return fmt.Errorf("finishing session %s: %w", id, err)
	}
	return nil
}

// Events returns a session's events in insertion order.
func (s *Store) Events(sessionID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT source_id, source_type, type, phase, time_ms, COALESCE(params, '')
		 FROM net_log_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ms int64
		if err := rows.Scan(&e.SourceID, &e.SourceType, &e.Type, &e.Phase, &ms, &e.Params); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Time = time.UnixMilli(ms)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Sessions returns every recorded session in start order.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, capture_mode, stopped_at IS NOT NULL, event_count
		 FROM net_log_sessions ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.CaptureMode, &ss.Stopped, &ss.EventCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "netlog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s == nil {
		t.Fatal("Open() returned nil Store")
	}
	t.Cleanup(func() { s.Close() })
}

func TestOpen_SchemaCreated(t *testing.T) {
	s := openTestStore(t)

	want := map[string]bool{
		"net_log_sessions": false,
		"net_log_events":   false,
	}

	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows iteration: %v", err)
	}

	for table, found := range want {
		if !found {
			t.Errorf("table %q not created", table)
		}
	}
}

func TestOpen_WALMode(t *testing.T) {
	// File-based since :memory: databases report "memory" as journal mode.
	s := openTestStore(t)

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/that/does/not/exist/db.sqlite")
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSession_EventsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	start := time.UnixMilli(1_700_000_000_000)

	if err := s.BeginSession("sess-1", "Default", start); err != nil {
		t.Fatalf("BeginSession() error = %v", err)
	}
	events := []Event{
		{SourceID: 1, SourceType: "URL_REQUEST", Type: "REQUEST_ALIVE", Phase: "PHASE_BEGIN", Time: start, Params: `{"url":"http://x/"}`},
		{SourceID: 1, SourceType: "URL_REQUEST", Type: "REQUEST_ALIVE", Phase: "PHASE_END", Time: start.Add(5 * time.Millisecond)},
	}
	for _, e := range events {
		if err := s.InsertEvent("sess-1", e); err != nil {
			t.Fatalf("InsertEvent() error = %v", err)
		}
	}

	got, err := s.Events("sess-1")
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Phase != "PHASE_BEGIN" || got[1].Phase != "PHASE_END" {
		t.Errorf("phases = (%s, %s), want (PHASE_BEGIN, PHASE_END)", got[0].Phase, got[1].Phase)
	}
	if got[0].Params != `{"url":"http://x/"}` {
		t.Errorf("params = %q, want %q", got[0].Params, `{"url":"http://x/"}`)
	}
	if got[1].Params != "" {
		t.Errorf("params = %q, want empty", got[1].Params)
	}
	if !got[1].Time.Equal(start.Add(5 * time.Millisecond)) {
		t.Errorf("time = %v, want %v", got[1].Time, start.Add(5*time.Millisecond))
	}
}

func TestEndSession_CountsEvents(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.BeginSession("sess-2", "Everything", now); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.InsertEvent("sess-2", Event{SourceID: uint64(i), SourceType: "URL_REQUEST", Type: "TCP_CONNECT", Phase: "PHASE_NONE", Time: now}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.EndSession("sess-2", now.Add(time.Second)); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	sessions, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.ID != "sess-2" || !got.Stopped {
		t.Errorf("session = %+v, want stopped sess-2", got)
	}
	if got.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", got.EventCount)
	}
	if got.CaptureMode != "Everything" {
		t.Errorf("CaptureMode = %q, want %q", got.CaptureMode, "Everything")
	}
}

func TestSessions_StartOrderAndOpen(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for _, id := range []string{"first", "second"} {
		if err := s.BeginSession(id, "Default", now); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.EndSession("first", now); err != nil {
		t.Fatal(err)
	}

	got, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("sessions = %+v, want first then second", got)
	}
	if !got[0].Stopped || got[1].Stopped {
		t.Errorf("stopped = (%v, %v), want (true, false)", got[0].Stopped, got[1].Stopped)
	}
	if got[1].EventCount != 0 {
		t.Errorf("open session EventCount = %d, want 0", got[1].EventCount)
	}
}

func TestEvents_IsolatedPerSession(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	_ = s.BeginSession("a", "Default", now)
	_ = s.BeginSession("b", "Default", now)
	_ = s.InsertEvent("a", Event{SourceID: 1, SourceType: "URL_REQUEST", Type: "REQUEST_ALIVE", Phase: "PHASE_BEGIN", Time: now})

	got, err := s.Events("b")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("session b has %d events, want 0", len(got))
	}
}

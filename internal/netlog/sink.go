package netlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/boozedog/netlogfixture/internal/store"
)

const logFormatVersion = 1

type sink interface {
	Write(e Event) error
	Close(stoppedAt time.Time) error
}

func openSink(path, session string, opts Options, startedAt time.Time) (sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return openSQLiteSink(path, session, opts, startedAt)
	default:
		return openJSONSink(path, session, opts, startedAt)
	}
}

// jsonSink streams a single JSON document. The trailing "]" and polledData
// are only written on Close, so an interrupted log is truncated JSON.
type jsonSink struct {
	f       *os.File
	w       *bufio.Writer
	max     int64
	written int64
	events  int
	dropped int
}

func openJSONSink(path, session string, opts Options, startedAt time.Time) (*jsonSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	constants, err := json.Marshal(map[string]any{
		"logFormatVersion": logFormatVersion,
		"logSessionID":     session,
		"captureMode":      opts.CaptureMode.String(),
		"timeTickOffset":   startedAt.UnixMilli(),
		"clientInfo": map[string]string{
			"name":      "netlogfixture",
			"goVersion": runtime.Version(),
			"os":        runtime.GOOS + "/" + runtime.GOARCH,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("encoding constants: %w", err)
	}

	s := &jsonSink{f: f, w: bufio.NewWriter(f), max: opts.MaxFileSize}
	if _, err := fmt.Fprintf(s.w, "{\"constants\":%s,\n\"events\": [\n", constants); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *jsonSink) Write(e Event) error {
	b, err := json.Marshal(e.toJSON())
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if s.events > 0 {
		b = append([]byte(",\n"), b...)
	}
	if s.max > 0 && s.written+int64(len(b)) > s.max {
		s.dropped++
		return nil
	}
	n, err := s.w.Write(b)
	s.written += int64(n)
	if err != nil {
		return err
	}
	s.events++
	return nil
}

func (s *jsonSink) Close(stoppedAt time.Time) error {
	polled, err := json.Marshal(map[string]any{
		"eventCount":    s.events,
		"droppedEvents": s.dropped,
		"stoppedAt":     stoppedAt.UnixMilli(),
	})
	if err != nil {
		s.f.Close()
		return fmt.Errorf("encoding polled data: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "\n],\n\"polledData\": %s}\n", polled); err != nil {
		s.f.Close()
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// sqliteSink writes each event as a row. MaxFileSize does not apply.
type sqliteSink struct {
	st      *store.Store
	session string
}

func openSQLiteSink(path, session string, opts Options, startedAt time.Time) (*sqliteSink, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := st.BeginSession(session, opts.CaptureMode.String(), startedAt); err != nil {
		st.Close()
		return nil, err
	}
	return &sqliteSink{st: st, session: session}, nil
}

func (s *sqliteSink) Write(e Event) error {
	var params string
	if len(e.Params) > 0 {
		b, err := json.Marshal(e.Params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		params = string(b)
	}
	return s.st.InsertEvent(s.session, store.Event{
		SourceID:   e.Source.ID,
		SourceType: e.Source.Type,
		Type:       e.Type,
		Phase:      string(e.Phase),
		Time:       e.Time,
		Params:     params,
	})
}

func (s *sqliteSink) Close(stoppedAt time.Time) error {
	err := s.st.EndSession(s.session, stoppedAt)
	if cerr := s.st.Close(); err == nil {
		err = cerr
	}
	return err
}

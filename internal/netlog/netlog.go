// Package netlog records outbound HTTP activity to a log file while capture is
// active. A Logger is started and stopped explicitly; requests made through
// its Transport are recorded only while IsLogging reports true.
//
// The default file format is a single JSON document with "constants",
// "events" and "polledData" keys. Destinations ending in .db, .sqlite or
// .sqlite3 are written to SQLite instead.
package netlog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyLogging = errors.New("netlog: already logging")
	ErrNoDestination  = errors.New("netlog: no destination and no default path")
)

// CaptureMode controls how much detail is written for each event.
type CaptureMode int

const (
	// CaptureDefault strips credentials and cookies from headers.
	CaptureDefault CaptureMode = iota
	// CaptureIncludeSensitive keeps header values verbatim.
	CaptureIncludeSensitive
	// CaptureEverything also records response body byte counts.
	CaptureEverything
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureIncludeSensitive:
		return "IncludeSensitive"
	case CaptureEverything:
		return "Everything"
	default:
		return "Default"
	}
}

// ParseCaptureMode accepts the names returned by CaptureMode.String,
// case-insensitively.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return CaptureDefault, nil
	case "includesensitive":
		return CaptureIncludeSensitive, nil
	case "everything":
		return CaptureEverything, nil
	default:
		return CaptureDefault, fmt.Errorf("netlog: unknown capture mode %q", s)
	}
}

type Options struct {
	// DefaultPath is used when StartLogging is called without a path.
	DefaultPath string
	CaptureMode CaptureMode
	// MaxFileSize bounds the events section of JSON logs. Zero means unbounded.
	MaxFileSize int64
}

// Logger owns the process-wide capture state.
type Logger struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	sink    sink
	path    string
	session string
	logging atomic.Bool
	nextID  atomic.Uint64
}

func New(opts Options, log *slog.Logger) *Logger {
	return &Logger{opts: opts, log: log}
}

// IsLogging reports whether events are currently being captured.
func (l *Logger) IsLogging() bool {
	return l.logging.Load()
}

// CaptureMode returns the mode events are recorded with.
func (l *Logger) CaptureMode() CaptureMode {
	return l.opts.CaptureMode
}

// StartLogging begins capturing to path, or to the default path when path is
// empty. An existing JSON log at the destination is replaced; a SQLite
// destination gains a new session.
func (l *Logger) StartLogging(path string) error {
	if path == "" {
		path = l.opts.DefaultPath
	}
	if path == "" {
		return ErrNoDestination
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink != nil {
		return fmt.Errorf("%w to %s", ErrAlreadyLogging, l.path)
	}

	session := uuid.NewString()
	s, err := openSink(path, session, l.opts, time.Now())
	if err != nil {
		return fmt.Errorf("netlog: start %s: %w", path, err)
	}

	l.sink = s
	l.path = path
	l.session = session
	l.logging.Store(true)
	l.log.Info("net log started", "path", path, "session", session, "capture_mode", l.opts.CaptureMode.String())
	return nil
}

// StopLogging ends capture. IsLogging reports false as soon as StopLogging
// returns; done is called exactly once after the log has been finalized.
// Stopping while not logging still calls done, with a nil error.
func (l *Logger) StopLogging(done func(error)) {
	l.mu.Lock()
	s, path := l.sink, l.path
	l.sink, l.path, l.session = nil, "", ""
	l.logging.Store(false)
	l.mu.Unlock()

	go func() {
		var err error
		if s != nil {
			if err = s.Close(time.Now()); err != nil {
				err = fmt.Errorf("netlog: finalize %s: %w", path, err)
			}
			l.log.Info("net log stopped", "path", path, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
}

func (l *Logger) newSource(typ string) Source {
	return Source{ID: l.nextID.Add(1), Type: typ}
}

// currentSession returns the active session ID, or "" when not logging.
func (l *Logger) currentSession() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// emit writes an event belonging to session. Events from a session that has
// since been stopped are dropped, even if a new session is active.
func (l *Logger) emit(session string, src Source, typ string, phase Phase, params map[string]any) {
	if !l.logging.Load() {
		return
	}
	e := Event{Source: src, Type: typ, Phase: phase, Time: time.Now(), Params: params}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil || l.session != session {
		return
	}
	if err := l.sink.Write(e); err != nil {
		l.log.Warn("net log write failed", "type", typ, "error", err)
	}
}

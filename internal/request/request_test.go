package request

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(rt http.RoundTripper) *Client {
	return New(rt, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRequest_OK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	if err := newTestClient(nil).Request(context.Background(), srv.URL); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestRequest_ErrorStatusStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := newTestClient(nil).Request(context.Background(), srv.URL); err != nil {
		t.Errorf("Request() error = %v, want nil for a 500 response", err)
	}
}

func TestRequest_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := newTestClient(nil).Request(context.Background(), url); err == nil {
		t.Fatal("Request() expected error for closed server, got nil")
	}
}

func TestRequest_InvalidURL(t *testing.T) {
	if err := newTestClient(nil).Request(context.Background(), "http://[::1"); err == nil {
		t.Fatal("Request() expected error for invalid URL, got nil")
	}
}

func TestRequest_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := newTestClient(nil).Request(ctx, srv.URL); err == nil {
		t.Fatal("Request() expected error after context timeout, got nil")
	}
}

func TestRequest_UsesTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var used atomic.Bool
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})
	if err := newTestClient(rt).Request(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if !used.Load() {
		t.Error("custom transport was not used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

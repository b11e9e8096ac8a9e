package netlog

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
)

// Transport wraps base so requests are recorded while l is logging. A nil
// base uses http.DefaultTransport.
func (l *Logger) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{base: base, l: l}
}

type transport struct {
	base http.RoundTripper
	l    *Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	l := t.l
	session := l.currentSession()
	if session == "" {
		return t.base.RoundTrip(req)
	}

	mode := l.CaptureMode()
	src := l.newSource(SourceURLRequest)
	emit := func(typ string, phase Phase, params map[string]any) {
		l.emit(session, src, typ, phase, params)
	}
	emit(EventRequestAlive, PhaseBegin, map[string]any{
		"url":    req.URL.String(),
		"method": req.Method,
	})

	trace := &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			emit(EventHostResolver, PhaseBegin, map[string]any{"host": info.Host})
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			params := map[string]any{"address_count": len(info.Addrs)}
			if info.Err != nil {
				params["net_error"] = info.Err.Error()
			}
			emit(EventHostResolver, PhaseEnd, params)
		},
		ConnectStart: func(network, addr string) {
			emit(EventTCPConnect, PhaseBegin, map[string]any{"address": addr, "network": network})
		},
		ConnectDone: func(network, addr string, err error) {
			params := map[string]any{"address": addr}
			if err != nil {
				params["net_error"] = err.Error()
			}
			emit(EventTCPConnect, PhaseEnd, params)
		},
		TLSHandshakeStart: func() {
			emit(EventSSLConnect, PhaseBegin, nil)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			params := map[string]any{
				"version":      tls.VersionName(state.Version),
				"cipher_suite": tls.CipherSuiteName(state.CipherSuite),
			}
			if err != nil {
				params["net_error"] = err.Error()
			}
			emit(EventSSLConnect, PhaseEnd, params)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				emit(EventSocketReused, PhaseNone, map[string]any{"idle_time_ms": info.IdleTime.Milliseconds()})
			}
		},
		WroteHeaders: func() {
			emit(EventSendRequestHeaders, PhaseNone, map[string]any{
				"line":    req.Method + " " + req.URL.RequestURI() + " " + req.Proto,
				"headers": mode.headerLines(req.Header),
			})
		},
	}

	resp, err := t.base.RoundTrip(req.WithContext(httptrace.WithClientTrace(req.Context(), trace)))
	if err != nil {
		emit(EventRequestFailed, PhaseNone, map[string]any{"net_error": err.Error()})
		emit(EventRequestAlive, PhaseEnd, nil)
		return nil, err
	}

	emit(EventReadResponseHeaders, PhaseNone, map[string]any{
		"line":    resp.Proto + " " + resp.Status,
		"headers": mode.headerLines(resp.Header),
	})
	resp.Body = &trackedBody{ReadCloser: resp.Body, emit: emit, countBytes: mode == CaptureEverything}
	return resp, nil
}

// trackedBody ends the request's REQUEST_ALIVE span when the body is closed.
// emit is bound to the session the request started in.
type trackedBody struct {
	io.ReadCloser
	emit       func(typ string, phase Phase, params map[string]any)
	countBytes bool
	n          atomic.Int64
	once       sync.Once
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n.Add(int64(n))
	return n, err
}

func (b *trackedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		if b.countBytes {
			b.emit(EventBytesRead, PhaseNone, map[string]any{"byte_count": b.n.Load()})
		}
		b.emit(EventRequestAlive, PhaseEnd, nil)
	})
	return err
}

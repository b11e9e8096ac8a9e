package netlog

import (
	"net/http"
	"slices"
	"strconv"
	"time"
)

type Phase string

const (
	PhaseBegin Phase = "PHASE_BEGIN"
	PhaseEnd   Phase = "PHASE_END"
	PhaseNone  Phase = "PHASE_NONE"
)

// Source types.
const (
	SourceURLRequest = "URL_REQUEST"
)

// Event types.
const (
	EventRequestAlive        = "REQUEST_ALIVE"
	EventHostResolver        = "HOST_RESOLVER_IMPL_JOB"
	EventTCPConnect          = "TCP_CONNECT"
	EventSSLConnect          = "SSL_CONNECT"
	EventSocketReused        = "SOCKET_POOL_REUSED_AN_EXISTING_SOCKET"
	EventSendRequestHeaders  = "HTTP_TRANSACTION_SEND_REQUEST_HEADERS"
	EventReadResponseHeaders = "HTTP_TRANSACTION_READ_RESPONSE_HEADERS"
	EventBytesRead           = "URL_REQUEST_JOB_BYTES_READ"
	EventRequestFailed       = "REQUEST_FAILED"
)

// Source identifies the entity an event belongs to. IDs are unique per Logger.
type Source struct {
	ID   uint64 `json:"id"`
	Type string `json:"type"`
}

type Event struct {
	Source Source
	Type   string
	Phase  Phase
	Time   time.Time
	Params map[string]any
}

// jsonEvent is the on-disk shape. Times are millisecond strings.
type jsonEvent struct {
	Source Source         `json:"source"`
	Type   string         `json:"type"`
	Phase  Phase          `json:"phase"`
	Time   string         `json:"time"`
	Params map[string]any `json:"params,omitempty"`
}

func (e Event) toJSON() jsonEvent {
	return jsonEvent{
		Source: e.Source,
		Type:   e.Type,
		Phase:  e.Phase,
		Time:   strconv.FormatInt(e.Time.UnixMilli(), 10),
		Params: e.Params,
	}
}

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
}

// headerLines renders h as sorted "Name: value" lines, stripping sensitive
// values unless the mode allows them.
func (m CaptureMode) headerLines(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var lines []string
	for _, k := range keys {
		for _, v := range h[k] {
			if m == CaptureDefault && sensitiveHeaders[http.CanonicalHeaderKey(k)] {
				v = "[" + strconv.Itoa(len(v)) + " bytes were stripped]"
			}
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// Package request issues the single outbound request of a logging cycle.
package request

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

type Client struct {
	http *http.Client
	log  *slog.Logger
}

// New returns a Client that sends requests through rt. A nil rt uses
// http.DefaultTransport.
func New(rt http.RoundTripper, log *slog.Logger) *Client {
	return &Client{
		http: &http.Client{Transport: rt},
		log:  log,
	}
}

// Request sends a GET to url and returns once the response has begun. Any
// status counts as a response; the body is discarded unread.
func (c *Client) Request(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	resp.Body.Close()

	c.log.Debug("response received", "url", url, "status", resp.StatusCode)
	return nil
}

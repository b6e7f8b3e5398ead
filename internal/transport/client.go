// Package transport provides the generic HTTP client used for all source
// adapter calls. Every call carries its own timeout; exceeding it fails
// only that call.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// DefaultTimeout is the per-call timeout applied when none is configured.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes bounds response bodies so a misbehaving source cannot
// exhaust memory.
const maxResponseBytes = 8 << 20

// Client performs adapter HTTP calls with per-call timeouts.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New creates a transport client with the given per-call timeout.
// A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		// The per-call deadline is managed via context so callers can
		// tighten it per request; the client itself has no timeout.
		http:    &http.Client{},
		timeout: timeout,
	}
}

// Do executes one adapter request and returns the raw response body.
// Non-2xx statuses and transport failures are returned as AdapterErrors
// attributed to sourceID.
func (c *Client) Do(ctx context.Context, sourceID string, req *sources.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, errors.WrapAdapter(sourceID, 0, err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("adapter call", c.timeout.String(), sourceID)
		}
		return nil, errors.WrapAdapter(sourceID, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapAdapter(sourceID, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.AdapterError{
			Source:     sourceID,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   req.URL,
		}
	}

	return body, nil
}

// build assembles the http.Request from an adapter request description.
func (c *Client) build(ctx context.Context, req *sources.Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	if len(req.Params) > 0 {
		q := httpReq.URL.Query()
		for name, value := range req.Params {
			q.Set(name, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	httpReq.Header.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// Timeout returns the configured per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Caller is the minimal interface the orchestrator needs from a transport.
// Tests substitute stub implementations.
type Caller interface {
	Do(ctx context.Context, sourceID string, req *sources.Request) ([]byte, error)
}

var _ Caller = (*Client)(nil)

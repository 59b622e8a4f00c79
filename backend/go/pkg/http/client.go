package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"foodietrack/backend/go/internal/config"
	"foodietrack/backend/go/pkg/circuitbreaker"
)

// StatusError is returned by the JSON helpers when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient    *http.Client
	breaker       *circuitbreaker.Breaker
	onStateChange func(name string, from, to circuitbreaker.State)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-request timeout (default 30s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client, e.g. to point at an httptest server.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithStateChange registers a callback for breaker transitions.
func WithStateChange(fn func(name string, from, to circuitbreaker.State)) ClientOption {
	return func(c *Client) { c.onStateChange = fn }
}

// NewClient creates a new Client named after the upstream it talks to.
// The breaker is only installed when cfg.Enabled is set.
func NewClient(name string, cfg config.CircuitBreakerConfig, opts ...ClientOption) *Client {
	c := &Client{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Enabled {
		c.breaker = circuitbreaker.New(name, circuitbreaker.Settings{
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          config.Duration(cfg.Timeout),
			OnStateChange:    c.onStateChange,
		})
	}
	return c
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures; the response is still returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	})
	if err != nil {
		var se *StatusError
		if resp != nil && errors.As(err, &se) {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// DoJSON sends body (if non-nil) as JSON and decodes a 2xx response into out (if non-nil).
// Non-2xx responses are returned as *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, url string, header http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.DoRequest(req, out)
}

// DoRequest sends a prepared request and decodes a 2xx JSON response into out.
func (c *Client) DoRequest(req *http.Request, out interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// BreakerState reports the breaker state, Closed when no breaker is installed.
func (c *Client) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.Closed
	}
	return c.breaker.State()
}

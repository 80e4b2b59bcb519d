// Package transport sends JSON payloads to named endpoints of the remote
// formula-language service.
//
// The client performs exactly one POST per call. It never retries and never
// caches; a network failure is returned to the caller. Non-2xx responses are
// returned as a Response rather than an error so callers decide their own
// failure policy.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dshills/fxbridge/internal/logging"
)

// Endpoint names exposed by the formula-language service.
const (
	EndpointLSP  = "lsp"
	EndpointEval = "eval"
)

// ContentType is sent with every request.
const ContentType = "application/json"

// ErrNoEndpoint indicates the client has no base URL configured.
var ErrNoEndpoint = errors.New("no service endpoint configured")

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Sender is the subset of Client used by the relay and the coordinator.
type Sender interface {
	Send(ctx context.Context, endpoint, payload string) (*Response, error)
}

// Client posts payloads to baseURL+endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(l).WithComponent("transport")
	}
}

// NewClient creates a client for the given service base URL.
// The endpoint name is appended verbatim, so baseURL normally ends in "/".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the full URL for an endpoint.
func (c *Client) URL(endpoint string) string {
	return c.baseURL + endpoint
}

// Send posts payload to the named endpoint and reads the full response.
func (c *Client) Send(ctx context.Context, endpoint, payload string) (*Response, error) {
	if c.baseURL == "" {
		return nil, ErrNoEndpoint
	}

	url := c.URL(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", ContentType)

	c.logger.Debug("POST %s (%d bytes)", url, len(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// StatusError reports a non-2xx response from an endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s endpoint returned status %d", e.Endpoint, e.StatusCode)
}

// CheckStatus returns a *StatusError when r is not a 2xx response.
func CheckStatus(endpoint string, r *Response) error {
	if r.OK() {
		return nil
	}
	code := 0
	if r != nil {
		code = r.StatusCode
	}
	return &StatusError{Endpoint: endpoint, StatusCode: code}
}

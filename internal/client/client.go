// Package client consumes the job progress endpoint, GET /api/progress/{job_id}.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

const (
	progressPath     = "/api/progress/"
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "progresswatch/1.0"
	maxBodyBytes     = 1 << 20
)

// ErrDecode marks a response body that could not be parsed as a progress
// object.
var ErrDecode = errors.New("decode progress response")

// Client fetches job progress over HTTP. No authentication is attached and no
// response headers are inspected.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTransport sets the round tripper of the underlying HTTP client.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.httpClient.Transport = rt
		}
	}
}

// WithTimeout bounds each request. Zero disables the client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a Client for the server at baseURL, for example
// "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the progress endpoint for jobID. The id is interpolated into the
// path verbatim.
func (c *Client) URL(jobID string) string {
	return c.baseURL + progressPath + jobID
}

// Fetch issues one progress request and returns the decoded body together
// with the HTTP status code. The body is decoded whatever the status, since
// the server reports unknown jobs as 404 with an error field. A transport
// failure returns status 0.
func (c *Client) Fetch(ctx context.Context, jobID string) (progress.Response, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(jobID), nil)
	if err != nil {
		return progress.Response{}, 0, fmt.Errorf("build progress request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return progress.Response{}, 0, fmt.Errorf("get progress: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return progress.Response{}, resp.StatusCode, fmt.Errorf("read progress body: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return progress.Response{}, resp.StatusCode, fmt.Errorf("%w (status %d): body is not a JSON object", ErrDecode, resp.StatusCode)
	}
	var out progress.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return progress.Response{}, resp.StatusCode, fmt.Errorf("%w (status %d): %w", ErrDecode, resp.StatusCode, err)
	}
	return out, resp.StatusCode, nil
}

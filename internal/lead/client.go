package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultUpdatePath = "/api/leads/update"
	defaultSubmitPath = "/api/leads/submit"

	// APIKeyHeader carries the store credential on every request.
	APIKeyHeader = "x-api-key"

	maxErrorBody = 4 << 10
)

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*Client)

// WithTimeout bounds each request. Default: 15s.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithPaths overrides the update and submit endpoint paths.
func WithPaths(update, submit string) ClientOption {
	return func(c *Client) {
		if update != "" {
			c.updatePath = update
		}
		if submit != "" {
			c.submitPath = submit
		}
	}
}

// Client is the HTTP implementation of [Store]. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	updatePath string
	submitPath string
	http       *http.Client
}

var _ Store = (*Client)(nil)

// NewClient returns a [Client] for the store at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		updatePath: defaultUpdatePath,
		submitPath: defaultSubmitPath,
		http:       &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Update implements [Store].
func (c *Client) Update(ctx context.Context, p Payload) (Response, error) {
	resp, err := c.post(ctx, "update", c.updatePath, p)
	if err != nil {
		return Response{}, err
	}
	if resp.Message == "" {
		resp.Message = "Lead progress saved."
	}
	return resp, nil
}

// Submit implements [Store].
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Response, error) {
	resp, err := c.post(ctx, "submit", c.submitPath, req)
	if err != nil {
		return Response{}, err
	}
	if resp.Message == "" {
		resp.Message = "Lead submitted."
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any) (Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("lead: %s: marshal: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return Response{}, fmt.Errorf("lead: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("lead: %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("lead: %s: read body: %w", op, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return Response{}, &StatusError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out Response
	if len(bytes.TrimSpace(raw)) > 0 {
		// A non-JSON 2xx body is still a success; only message parsing is lost.
		_ = json.Unmarshal(raw, &out)
	}
	return out, nil
}

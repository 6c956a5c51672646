// Package apiv2 is the HTTP client for the v2 challenge API.
package apiv2

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chflow"
	"chflow/circuit"
)

// ServiceName is the breaker name of the v2 API.
const ServiceName = "apiv2"

// Client performs authenticated GETs against the v2 API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker circuit.CircuitBreaker
}

var _ chflow.APIClient = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithBreaker guards every call with the named breaker of b.
func WithBreaker(b circuit.Breaker) ClientOption {
	return func(cl *Client) {
		cl.breaker = b.Get(ServiceName)
	}
}

// NewClient creates a client rooted at baseURL. The default HTTP client sets no
// timeout; bound calls through ctx or WithHTTPClient.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs path. Any status is returned as a Response; only transport
// failures and 5xx answers count against the breaker.
func (c *Client) Fetch(ctx context.Context, token, path string) (*chflow.Response, error) {
	if c.breaker == nil {
		return c.do(ctx, token, path)
	}

	var resp *chflow.Response
	err := c.breaker.Execute(ctx, func() error {
		var err error
		resp, err = c.do(ctx, token, path)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return &chflow.StatusError{Code: resp.StatusCode, Path: path}
		}
		return nil
	})
	// a 5xx still reaches the caller as a response
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

func (c *Client) do(ctx context.Context, token, path string) (*chflow.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &chflow.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

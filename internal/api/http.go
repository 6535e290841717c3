package api

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

// HTTPClient implements Client over JSON/HTTP against a fixed base URL.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns an HTTPClient for the given base URL. A zero timeout
// defaults to 15 seconds.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Get(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *HTTPClient) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, body)
}

func (c *HTTPClient) Put(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, endpoint, body)
}

func (c *HTTPClient) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil)
}

// Ping issues a GET against /ping and reports reachability only; any HTTP
// status counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// Endpoints may carry a query string, so they are joined verbatim.
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		return &out, fmt.Errorf("%w: %s", ErrRejected, out.Error)
	}
	return &out, nil
}

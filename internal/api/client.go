// Package api defines the remote API surface the sync core depends on and a
// JSON-over-HTTP implementation of it. The sync engine and progressive loader
// only see the Client interface, so tests substitute fakes.
package api

import (
	"context"
	"encoding/json"
)

// Response is the minimal envelope every endpoint returns: a success
// indicator and an opaque data payload.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Client performs remote API calls. All methods may fail with ErrUnavailable
// when the server cannot be reached; such failures are transient and safe to
// retry.
type Client interface {
	Get(ctx context.Context, endpoint string) (*Response, error)
	Post(ctx context.Context, endpoint string, body any) (*Response, error)
	Put(ctx context.Context, endpoint string, body any) (*Response, error)
	Delete(ctx context.Context, endpoint string) (*Response, error)

	// Ping probes server reachability. Used by the connectivity monitor.
	Ping(ctx context.Context) error

	Close() error
}

package api

import "errors"

var (
	// ErrUnavailable marks transport-level failures (server unreachable,
	// timeout). Callers treat these as transient.
	ErrUnavailable = errors.New("server unavailable")

	// ErrRejected marks responses the server returned but refused
	// (non-2xx status or success=false). Not retryable.
	ErrRejected = errors.New("request rejected by server")
)

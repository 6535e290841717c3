// Package common defines shared constants and sentinel errors used across
// the offline-sync core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Connectivity / sync flow control.
	ErrOffline = errors.New("device is offline")

	// Queue errors.
	ErrActionNotFound   = errors.New("pending action not found")
	ErrRetriesExhausted = errors.New("retry budget exhausted")

	// Executor registry errors.
	ErrNoExecutor = errors.New("no executor registered for action type")
)

// Package storage provides the durable key/value store that backs the action
// queue and the local cache across app restarts. Values are opaque strings
// (callers serialize to JSON). Store failures are recoverable: callers log
// and continue on in-memory state.
package storage

import "context"

// Store is a string-keyed durable store.
type Store interface {
	// GetItem returns the value for key, or common.ErrNotFound.
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem writes the value for key, overwriting any previous value.
	SetItem(ctx context.Context, key string, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// MultiRemove deletes all given keys atomically where the backend allows.
	MultiRemove(ctx context.Context, keys []string) error

	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)
}

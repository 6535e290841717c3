package syncer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/partysync/internal/queue"
)

// Executor performs the remote API call for one action type. On success it
// returns the server's view of the affected entity (may be empty when the
// server returns nothing useful).
type Executor func(ctx context.Context, action *queue.PendingAction) (json.RawMessage, error)

// Registry maps action types to their executors. It is populated at startup;
// enqueueing an action type with no executor is a programming error surfaced
// at drain time.
type Registry struct {
	mu        sync.RWMutex
	executors map[queue.ActionType]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[queue.ActionType]Executor)}
}

// Register binds fn to the given action type, replacing any previous binding.
func (r *Registry) Register(t queue.ActionType, fn Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = fn
}

// Lookup returns the executor for t.
func (r *Registry) Lookup(t queue.ActionType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[t]
	return fn, ok
}

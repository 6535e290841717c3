// Package queue implements the durable action queue: an ordered, persisted
// list of pending mutations buffered while the device is offline.
//
// The in-memory list is authoritative for the session. Every mutation mirrors
// the full list to the durable store; a failed mirror is logged, flagged, and
// retried on the next mutation, never surfaced to the caller.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/storage"
	"github.com/google/uuid"
)

const persistKey = "sync:pending_actions"

// Queue is the process-wide durable action queue.
type Queue struct {
	store storage.Store
	log   logging.Logger

	mu      sync.Mutex
	actions []*PendingAction
	dirty   bool // last persist failed; retry on next mutation
}

// New returns an empty Queue backed by store. Call Load to rehydrate
// previously persisted actions.
func New(store storage.Store, log logging.Logger) *Queue {
	if log == nil {
		log = logging.Discard()
	}
	return &Queue{store: store, log: log}
}

// Load rehydrates the queue from the durable store. An absent key means a
// clean start; a corrupt payload is discarded with a warning rather than
// blocking startup.
func (q *Queue) Load(ctx context.Context) error {
	raw, err := q.store.GetItem(ctx, persistKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load pending actions: %w", err)
	}

	var actions []*PendingAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		q.log.Warn(ctx, "discarding corrupt pending-action state", "error", err)
		return nil
	}

	q.mu.Lock()
	q.actions = actions
	q.mu.Unlock()
	return nil
}

// Enqueue appends a new pending action and persists the queue. The returned
// copy is safe for the caller to inspect.
func (q *Queue) Enqueue(ctx context.Context, t ActionType, payload json.RawMessage, priority Priority, maxRetries int) *PendingAction {
	a := &PendingAction{
		ID:         uuid.NewString(),
		Type:       t,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		MaxRetries: maxRetries,
		Priority:   priority,
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.persistLocked(ctx)
	q.mu.Unlock()

	q.log.Debug(ctx, "action enqueued", "id", a.ID, "type", a.Type, "priority", a.Priority.String())
	return a.Clone()
}

// Dequeue removes the action with the given id and persists the queue.
func (q *Queue) Dequeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			q.persistLocked(ctx)
			return nil
		}
	}
	return common.ErrActionNotFound
}

// Update applies mutate to the action with the given id and persists the
// queue. Used by the sync engine to bump retry counters.
func (q *Queue) Update(ctx context.Context, id string, mutate func(*PendingAction)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, a := range q.actions {
		if a.ID == id {
			mutate(a)
			q.persistLocked(ctx)
			return nil
		}
	}
	return common.ErrActionNotFound
}

// Snapshot returns copies of all pending actions sorted by priority
// descending, FIFO within equal priority.
func (q *Queue) Snapshot() []*PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*PendingAction, 0, len(q.actions))
	for _, a := range q.actions {
		out = append(out, a.Clone())
	}
	// The backing slice is already in enqueue order, so a stable sort on
	// priority preserves FIFO within each priority class.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Count returns the number of pending actions.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// persistLocked mirrors the queue to durable storage. Failures are logged and
// flagged so the next mutation retries; they never propagate.
func (q *Queue) persistLocked(ctx context.Context) {
	data, err := json.Marshal(q.actions)
	if err != nil {
		q.log.Error(ctx, "failed to encode pending actions", "error", err)
		q.dirty = true
		return
	}
	if err := q.store.SetItem(ctx, persistKey, string(data)); err != nil {
		q.log.Warn(ctx, "failed to persist pending actions, keeping in-memory state", "error", err)
		q.dirty = true
		return
	}
	q.dirty = false
}

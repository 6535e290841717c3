// Package syncer drains the durable action queue against the remote API.
//
// A drain pass takes a priority-ordered snapshot and attempts every action
// once. Failures are isolated per action: a failed or panicking executor
// costs that action one retry and the pass moves on. At most one drain pass
// runs at a time; a trigger that arrives mid-pass is ignored, because the
// running pass already covers everything enqueued before it started and the
// next pass picks up the rest.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/conflict"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/google/uuid"
)

// maxSyncErrors caps the user-visible fatal error list; oldest entries are
// evicted first.
const maxSyncErrors = 50

// SyncError records an action dropped after exhausting its retry budget.
// The payload is retained for user-visible reporting.
type SyncError struct {
	ID         string           `json:"id"`
	ActionID   string           `json:"action_id"`
	ActionType queue.ActionType `json:"action_type"`
	Payload    json.RawMessage  `json:"payload"`
	Message    string           `json:"message"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Summary describes one completed drain pass.
type Summary struct {
	Succeeded  int
	Failed     int // will be retried on a later pass
	Dropped    int // retry budget exhausted, recorded as sync errors
	Conflicts  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Options configures an Engine.
type Options struct {
	// Tracked maps action types to the entity type used for conflict
	// detection on their results. Action types absent from the map skip
	// reconciliation entirely.
	Tracked map[queue.ActionType]conflict.EntityType

	// OnResolved, when set, receives every resolved conflict value so the
	// caller can persist it (typically into the local cache).
	OnResolved func(ctx context.Context, t conflict.EntityType, resolved json.RawMessage)
}

// Engine coordinates drain passes over the queue.
type Engine struct {
	queue    *queue.Queue
	registry *Registry
	resolver *conflict.Resolver
	tracker  *conflict.Tracker
	isOnline func() bool
	log      logging.Logger
	opts     Options

	mu       sync.Mutex
	draining bool
	lastSync time.Time
	errors   []*SyncError
}

// New builds an Engine. isOnline gates ForceSync; nil means always online.
func New(q *queue.Queue, registry *Registry, resolver *conflict.Resolver, tracker *conflict.Tracker, isOnline func() bool, log logging.Logger, opts Options) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	if isOnline == nil {
		isOnline = func() bool { return true }
	}
	return &Engine{
		queue:    q,
		registry: registry,
		resolver: resolver,
		tracker:  tracker,
		isOnline: isOnline,
		log:      log,
		opts:     opts,
	}
}

// InProgress reports whether a drain pass is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// LastSyncTime returns when the last drain pass finished (zero if never).
func (e *Engine) LastSyncTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Errors returns copies of the recorded sync errors, oldest first.
func (e *Engine) Errors() []*SyncError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*SyncError, 0, len(e.errors))
	for _, se := range e.errors {
		c := *se
		out = append(out, &c)
	}
	return out
}

// PendingConflicts returns conflicts detected but not yet resolved.
func (e *Engine) PendingConflicts() []*conflict.Record {
	if e.tracker == nil {
		return nil
	}
	return e.tracker.Pending()
}

// ForceSync runs a drain pass immediately. It fails fast with
// common.ErrOffline when the device is offline; a pass already in progress
// is not an error, the call is simply coalesced into it.
func (e *Engine) ForceSync(ctx context.Context) (*Summary, error) {
	if !e.isOnline() {
		return nil, common.ErrOffline
	}
	summary, started := e.Drain(ctx)
	if !started {
		return nil, nil
	}
	return summary, nil
}

// Drain performs one pass over the queue snapshot. It returns started=false
// when another pass is already running (the trigger is coalesced).
func (e *Engine) Drain(ctx context.Context) (*Summary, bool) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		e.log.Debug(ctx, "drain already in progress, trigger ignored")
		return nil, false
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	summary := &Summary{StartedAt: time.Now()}

	for _, action := range e.queue.Snapshot() {
		e.processAction(ctx, action, summary)
	}

	summary.FinishedAt = time.Now()

	e.mu.Lock()
	e.lastSync = summary.FinishedAt
	e.mu.Unlock()

	e.log.Info(ctx, "drain pass finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"dropped", summary.Dropped,
		"conflicts", summary.Conflicts,
	)
	return summary, true
}

func (e *Engine) processAction(ctx context.Context, action *queue.PendingAction, summary *Summary) {
	exec, ok := e.registry.Lookup(action.Type)
	if !ok {
		// Nothing can ever execute this action; drop it rather than retry forever.
		e.dropAction(ctx, action, common.ErrNoExecutor)
		summary.Dropped++
		return
	}

	remote, err := safeExecute(ctx, exec, action)
	if err == nil {
		if err := e.queue.Dequeue(ctx, action.ID); err != nil {
			e.log.Warn(ctx, "completed action already gone from queue", "id", action.ID)
		}
		summary.Succeeded++
		if e.reconcile(ctx, action, remote) {
			summary.Conflicts++
		}
		return
	}

	action.RetryCount++
	if action.RetryCount >= action.MaxRetries {
		e.dropAction(ctx, action, fmt.Errorf("%w: %v", common.ErrRetriesExhausted, err))
		summary.Dropped++
		return
	}

	if uerr := e.queue.Update(ctx, action.ID, func(a *queue.PendingAction) {
		a.RetryCount = action.RetryCount
	}); uerr != nil {
		e.log.Warn(ctx, "failed to record retry", "id", action.ID, "error", uerr)
	}
	summary.Failed++
	e.log.Debug(ctx, "action failed, will retry next pass",
		"id", action.ID, "type", action.Type,
		"retry", action.RetryCount, "max", action.MaxRetries, "error", err,
	)
}

// reconcile detects divergence between the local pre-image and the server's
// returned state for tracked action types, resolves it, and hands the
// resolved value to the configured sink. Returns true when a conflict was
// detected.
func (e *Engine) reconcile(ctx context.Context, action *queue.PendingAction, remote json.RawMessage) bool {
	entityType, tracked := e.opts.Tracked[action.Type]
	if !tracked || len(remote) == 0 || len(action.Payload) == 0 {
		return false
	}

	var localDoc, remoteDoc map[string]any
	if err := json.Unmarshal(action.Payload, &localDoc); err != nil {
		return false
	}
	if err := json.Unmarshal(remote, &remoteDoc); err != nil {
		e.log.Warn(ctx, "unparseable server state, skipping reconciliation", "id", action.ID, "error", err)
		return false
	}
	if reflect.DeepEqual(localDoc, remoteDoc) {
		return false
	}

	record := e.tracker.Add(entityType, action.Payload, remote)
	resolved, resolution := e.resolver.Resolve(localDoc, remoteDoc, entityType)

	data, err := json.Marshal(resolved)
	if err != nil {
		e.log.Error(ctx, "failed to encode resolved conflict data", "record", record.ID, "error", err)
		return true
	}
	if err := e.tracker.MarkResolved(record.ID, resolution); err != nil {
		e.log.Warn(ctx, "conflict record already resolved", "record", record.ID)
	}
	if e.opts.OnResolved != nil {
		e.opts.OnResolved(ctx, entityType, data)
	}

	e.log.Info(ctx, "conflict resolved",
		"record", record.ID, "entity_type", entityType, "resolution", resolution)
	return true
}

// dropAction permanently removes an action and records a fatal sync error.
func (e *Engine) dropAction(ctx context.Context, action *queue.PendingAction, cause error) {
	if err := e.queue.Dequeue(ctx, action.ID); err != nil {
		e.log.Warn(ctx, "dropped action already gone from queue", "id", action.ID)
	}

	se := &SyncError{
		ID:         uuid.NewString(),
		ActionID:   action.ID,
		ActionType: action.Type,
		Payload:    action.Payload,
		Message:    cause.Error(),
		OccurredAt: time.Now(),
	}

	e.mu.Lock()
	e.errors = append(e.errors, se)
	if len(e.errors) > maxSyncErrors {
		e.errors = e.errors[len(e.errors)-maxSyncErrors:]
	}
	e.mu.Unlock()

	e.log.Error(ctx, "action dropped after exhausting retries",
		"id", action.ID, "type", action.Type, "retries", action.RetryCount, "error", cause)
}

// safeExecute isolates executor panics so one misbehaving handler cannot
// abort the rest of the pass.
func safeExecute(ctx context.Context, exec Executor, action *queue.PendingAction) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return exec(ctx, action)
}

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/conflict"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/dmitrijs2005/partysync/internal/storage"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts Options) (*Engine, *queue.Queue, *Registry) {
	t.Helper()
	q := queue.New(storage.NewMemoryStore(), nil)
	reg := NewRegistry()
	e := New(q, reg, conflict.NewResolver(), conflict.NewTracker(), nil, nil, opts)
	return e, q, reg
}

func okExecutor(result string) Executor {
	return func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

func failExecutor(err error) Executor {
	return func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		return nil, err
	}
}

func TestDrain_SuccessDequeues(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})
	reg.Register(queue.ActionSendChatMessage, okExecutor(`{}`))

	q.Enqueue(ctx, queue.ActionSendChatMessage, json.RawMessage(`{"text":"hi"}`), queue.PriorityHigh, 3)

	summary, started := e.Drain(ctx)
	require.True(t, started)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 0, q.Count())
	require.False(t, e.LastSyncTime().IsZero())
}

func TestDrain_FailureLeavesActionForNextPass(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})
	reg.Register(queue.ActionCastVote, failExecutor(errors.New("boom")))

	q.Enqueue(ctx, queue.ActionCastVote, nil, queue.PriorityHigh, 5)

	summary, _ := e.Drain(ctx)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, q.Count())
	require.Equal(t, 1, q.Snapshot()[0].RetryCount)
	require.Empty(t, e.Errors(), "transient failures are not fatal errors")
}

func TestDrain_RetryBudgetExhaustionDropsAction(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})
	attempts := 0
	reg.Register(queue.ActionCastVote, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		attempts++
		return nil, errors.New("server down")
	})

	votePayload := json.RawMessage(`{"option":2}`)
	q.Enqueue(ctx, queue.ActionCastVote, votePayload, queue.PriorityHigh, 2)

	// Pass 1: retry budget remains.
	s1, _ := e.Drain(ctx)
	require.Equal(t, 1, s1.Failed)
	require.Equal(t, 1, q.Count())

	// Pass 2: budget exhausted, action dropped and recorded.
	s2, _ := e.Drain(ctx)
	require.Equal(t, 1, s2.Dropped)
	require.Equal(t, 0, q.Count())
	require.Equal(t, 2, attempts, "never attempted past max retries")

	errs := e.Errors()
	require.Len(t, errs, 1)
	require.Equal(t, queue.ActionCastVote, errs[0].ActionType)
	require.JSONEq(t, string(votePayload), string(errs[0].Payload))

	// Pass 3: nothing left, the dropped action is never attempted again.
	e.Drain(ctx)
	require.Equal(t, 2, attempts)
}

func TestDrain_FailureIsolatedPerAction(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})
	reg.Register(queue.ActionCastVote, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		panic("executor bug")
	})
	reg.Register(queue.ActionSendChatMessage, okExecutor(`{}`))

	q.Enqueue(ctx, queue.ActionCastVote, nil, queue.PriorityHigh, 3)
	q.Enqueue(ctx, queue.ActionSendChatMessage, nil, queue.PriorityHigh, 3)

	summary, _ := e.Drain(ctx)
	require.Equal(t, 1, summary.Succeeded, "a panicking executor must not abort the pass")
	require.Equal(t, 1, summary.Failed)
}

func TestDrain_NoExecutorDropsAction(t *testing.T) {
	ctx := context.Background()
	e, q, _ := newEngine(t, Options{})

	q.Enqueue(ctx, queue.ActionRemoveFriend, nil, queue.PriorityLow, 2)

	summary, _ := e.Drain(ctx)
	require.Equal(t, 1, summary.Dropped)
	require.Equal(t, 0, q.Count())
	require.Len(t, e.Errors(), 1)
}

func TestDrain_AtMostOneConcurrentPass(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	reg.Register(queue.ActionSendChatMessage, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return json.RawMessage(`{}`), nil
	})

	q.Enqueue(ctx, queue.ActionSendChatMessage, nil, queue.PriorityHigh, 3)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := e.Drain(ctx)
		require.True(t, ok)
	}()

	<-started
	require.True(t, e.InProgress())

	// Second trigger while the first pass is blocked: coalesced, not queued.
	summary, ok := e.Drain(ctx)
	require.False(t, ok)
	require.Nil(t, summary)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls, "no duplicate network call for the same action")
}

func TestForceSync_FailsFastWhenOffline(t *testing.T) {
	q := queue.New(storage.NewMemoryStore(), nil)
	e := New(q, NewRegistry(), conflict.NewResolver(), conflict.NewTracker(),
		func() bool { return false }, nil, Options{})

	_, err := e.ForceSync(context.Background())
	require.ErrorIs(t, err, common.ErrOffline)
}

func TestDrain_ReconcilesTrackedConflicts(t *testing.T) {
	ctx := context.Background()

	var sunkType conflict.EntityType
	var sunk json.RawMessage
	opts := Options{
		Tracked: map[queue.ActionType]conflict.EntityType{
			queue.ActionUpdateProfile: conflict.EntityProfile,
		},
		OnResolved: func(ctx context.Context, t conflict.EntityType, resolved json.RawMessage) {
			sunkType = t
			sunk = resolved
		},
	}
	e, q, reg := newEngine(t, opts)

	// Server returns a diverged copy: more wins, older scalar change.
	reg.Register(queue.ActionUpdateProfile, okExecutor(`{"gamesWon":6,"displayName":"Anna","updatedAt":100}`))

	q.Enqueue(ctx, queue.ActionUpdateProfile,
		json.RawMessage(`{"gamesWon":5,"displayName":"Ann","updatedAt":200}`),
		queue.PriorityMedium, 2)

	summary, _ := e.Drain(ctx)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Conflicts)

	require.Equal(t, conflict.EntityProfile, sunkType)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(sunk, &doc))
	require.Equal(t, float64(6), doc["gamesWon"])
	require.Equal(t, "Ann", doc["displayName"])
}

func TestDrain_IdenticalStateIsNoConflict(t *testing.T) {
	ctx := context.Background()
	opts := Options{
		Tracked: map[queue.ActionType]conflict.EntityType{
			queue.ActionUpdateProfile: conflict.EntityProfile,
		},
	}
	e, q, reg := newEngine(t, opts)
	reg.Register(queue.ActionUpdateProfile, okExecutor(`{"displayName":"Ann"}`))

	q.Enqueue(ctx, queue.ActionUpdateProfile, json.RawMessage(`{"displayName":"Ann"}`), queue.PriorityMedium, 2)

	summary, _ := e.Drain(ctx)
	require.Equal(t, 0, summary.Conflicts)
}

func TestErrors_CappedAtFifty(t *testing.T) {
	ctx := context.Background()
	e, q, reg := newEngine(t, Options{})
	reg.Register(queue.ActionSendChatMessage, failExecutor(errors.New("nope")))

	for i := 0; i < 60; i++ {
		q.Enqueue(ctx, queue.ActionSendChatMessage, nil, queue.PriorityHigh, 1)
	}

	e.Drain(ctx)
	errs := e.Errors()
	require.Len(t, errs, 50)

	// Oldest evicted first: entries are in chronological order.
	require.True(t, !errs[0].OccurredAt.After(errs[len(errs)-1].OccurredAt))
}

func TestDrain_SummaryTimestamps(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, Options{})

	before := time.Now()
	summary, _ := e.Drain(ctx)
	require.False(t, summary.StartedAt.Before(before))
	require.False(t, summary.FinishedAt.Before(summary.StartedAt))
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/partysync/internal/api"
	"github.com/dmitrijs2005/partysync/internal/cache"
	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/conflict"
	"github.com/dmitrijs2005/partysync/internal/connectivity"
	"github.com/dmitrijs2005/partysync/internal/loader"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/dmitrijs2005/partysync/internal/storage"
	"github.com/dmitrijs2005/partysync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient counts calls per method+endpoint and answers success for
// everything.
type fakeClient struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeClient) record(method, endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method+" "+endpoint)
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) Get(ctx context.Context, endpoint string) (*api.Response, error) {
	f.record("GET", endpoint)
	return &api.Response{Success: true, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeClient) Post(ctx context.Context, endpoint string, body any) (*api.Response, error) {
	f.record("POST", endpoint)
	return &api.Response{Success: true, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeClient) Put(ctx context.Context, endpoint string, body any) (*api.Response, error) {
	f.record("PUT", endpoint)
	return &api.Response{Success: true, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeClient) Delete(ctx context.Context, endpoint string) (*api.Response, error) {
	f.record("DELETE", endpoint)
	return &api.Response{Success: true, Data: json.RawMessage(`{}`)}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                   { return nil }

type testEnv struct {
	svc     *Service
	monitor *connectivity.Monitor
	client  *fakeClient
	queue   *queue.Queue
}

func newTestService(t *testing.T, startOnline bool, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	client := &fakeClient{}
	log := logging.Discard()
	store := storage.NewMemoryStore()

	online := startOnline
	var onlineMu sync.Mutex
	probe := func(ctx context.Context) bool {
		onlineMu.Lock()
		defer onlineMu.Unlock()
		return online
	}
	monitor := connectivity.New(probe, time.Hour, log)

	q := queue.New(store, log)

	registry := syncer.NewRegistry()
	RegisterDefaultExecutors(registry, client)

	engine := syncer.New(q, registry, conflict.NewResolver(), conflict.NewTracker(),
		monitor.IsOnline, log, syncer.Options{})

	c, err := cache.New(store, 1<<20, 1024, time.Minute, log)
	require.NoError(t, err)

	l := loader.New(client, c, monitor.IsOnline, log, loader.Options{BaseDelay: time.Millisecond})

	svc := New(monitor, q, engine, l, c, log, opts)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(svc.Stop)

	return &testEnv{svc: svc, monitor: monitor, client: client, queue: q}
}

func TestOfflineAction_QueuedThenDrainedOnReconnect(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, false, Options{})

	_, err := env.svc.SendChatMessage(ctx, "room-1", "gg everyone")
	require.NoError(t, err)

	st := env.svc.Status()
	assert.False(t, st.Online)
	assert.Equal(t, 1, st.PendingActions)
	assert.Equal(t, 0, env.client.count(), "no network call while offline")

	env.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return env.svc.Status().PendingActions == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.client.count())
}

func TestOnlineAction_DrainsImmediately(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, true, Options{})

	_, err := env.svc.CastVote(ctx, "room-1", "opt-2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.svc.Status().PendingActions == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.client.count())
}

func TestForceSync_OfflineFailsFast(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, false, Options{})

	_, err := env.svc.ForceSync(ctx)
	assert.ErrorIs(t, err, common.ErrOffline)
}

func TestForceSync_DrainsQueue(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, false, Options{})

	_, err := env.svc.SendFriendRequest(ctx, "u9")
	require.NoError(t, err)
	_, err = env.svc.RemoveFriend(ctx, "u3")
	require.NoError(t, err)
	require.Equal(t, 2, env.svc.Status().PendingActions)

	env.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return env.svc.Status().PendingActions == 0
	}, 2*time.Second, 10*time.Millisecond)

	summary, err := env.svc.ForceSync(ctx)
	require.NoError(t, err)
	if summary != nil {
		assert.Equal(t, 0, summary.Succeeded+summary.Failed)
	}
}

func TestReconnect_RefreshesHomeBundle(t *testing.T) {
	env := newTestService(t, false, Options{UserID: "u1"})

	env.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		env.client.mu.Lock()
		defer env.client.mu.Unlock()
		for _, call := range env.client.calls {
			if call == "GET /users/u1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnect_FiresAdvisoryHook(t *testing.T) {
	fired := make(chan struct{}, 1)
	env := newTestService(t, true, Options{OnOffline: func() { fired <- struct{}{} }})

	env.monitor.SetOnline(false)

	select {
	case <-fired:
	default:
		t.Fatal("offline hook did not fire")
	}
}

func TestStatus_Snapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, false, Options{})

	for i := 0; i < 3; i++ {
		_, err := env.svc.UpdateProfile(ctx, map[string]any{"displayName": fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
	}

	st := env.svc.Status()
	assert.Equal(t, 3, st.PendingActions)
	assert.False(t, st.SyncInProgress)
	assert.True(t, st.LastSyncTime.IsZero())
	assert.Equal(t, 0, st.PendingConflicts)
	assert.Equal(t, 0, st.SyncErrors)
}

func TestCachePassthroughs(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, true, Options{})

	res := env.svc.Loader().LoadData(ctx, []loader.Request{
		{ID: "r1", ResourceType: "room", Endpoint: "/rooms/r1", Priority: loader.PriorityHigh},
	})
	require.NoError(t, res.Err())

	stats := env.svc.CacheStats()
	assert.Equal(t, 1, stats.EntryCount)

	assert.Equal(t, 1, env.svc.InvalidateCache(ctx, "room"))
	env.svc.ClearCache(ctx)
	assert.Equal(t, 0, env.svc.CacheStats().EntryCount)
}

// Package service ties the sync core together behind one facade: the
// connectivity monitor, durable action queue, sync engine, conflict tracker,
// progressive loader and local cache, wired so the app above it only deals
// with plain method calls.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/partysync/internal/cache"
	"github.com/dmitrijs2005/partysync/internal/connectivity"
	"github.com/dmitrijs2005/partysync/internal/loader"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/dmitrijs2005/partysync/internal/syncer"
)

// Status is a point-in-time snapshot of the sync subsystem for UI badges and
// diagnostics screens.
type Status struct {
	Online           bool      `json:"online"`
	PendingActions   int       `json:"pending_actions"`
	SyncInProgress   bool      `json:"sync_in_progress"`
	LastSyncTime     time.Time `json:"last_sync_time"`
	PendingConflicts int       `json:"pending_conflicts"`
	SyncErrors       int       `json:"sync_errors"`
}

// Options tunes facade behavior.
type Options struct {
	// UserID, when set, lets the reconnect handler refresh the home screen
	// bundle after draining the queue.
	UserID string

	// OnOffline, when set, is called on every online-to-offline transition so
	// the UI can surface an advisory banner.
	OnOffline func()
}

// Service is the app-facing entry point to the offline sync subsystem.
type Service struct {
	monitor *connectivity.Monitor
	queue   *queue.Queue
	engine  *syncer.Engine
	loader  *loader.Loader
	cache   *cache.Cache
	log     logging.Logger
	opts    Options

	listenerID int
}

func New(monitor *connectivity.Monitor, q *queue.Queue, engine *syncer.Engine,
	l *loader.Loader, c *cache.Cache, log logging.Logger, opts Options) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		monitor: monitor,
		queue:   q,
		engine:  engine,
		loader:  l,
		cache:   c,
		log:     log,
		opts:    opts,
	}
}

// Start rehydrates durable state and hooks the reconnect handler. ctx bounds
// the background work the handler spawns.
func (s *Service) Start(ctx context.Context) error {
	if err := s.queue.Load(ctx); err != nil {
		return fmt.Errorf("loading pending actions: %w", err)
	}
	if err := s.cache.Load(ctx); err != nil {
		return fmt.Errorf("loading cache mirror: %w", err)
	}

	s.listenerID = s.monitor.AddListener(func(online bool) {
		if !online {
			s.log.Info(ctx, "connection lost, queueing mutations locally")
			if s.opts.OnOffline != nil {
				s.opts.OnOffline()
			}
			return
		}
		s.log.Info(ctx, "connection restored, draining pending actions", "pending", s.queue.Count())
		go s.onReconnect(ctx)
	})
	return nil
}

// Stop detaches the reconnect handler.
func (s *Service) Stop() {
	s.monitor.RemoveListener(s.listenerID)
}

func (s *Service) onReconnect(ctx context.Context) {
	if _, ran := s.engine.Drain(ctx); !ran {
		return
	}
	if s.opts.UserID != "" {
		s.loader.Prefetch(ctx, "home", s.opts.UserID)
	}
}

// enqueue records one mutation with its type's default priority and retry
// budget, then kicks a background drain when the server is reachable.
func (s *Service) enqueue(ctx context.Context, t queue.ActionType, payload any) (*queue.PendingAction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	policy := queue.PolicyFor(t)
	a := s.queue.Enqueue(ctx, t, data, policy.Priority, policy.MaxRetries)

	if s.monitor.IsOnline() {
		go s.engine.Drain(ctx)
	}
	return a, nil
}

// SendChatMessage queues a chat message for the given room.
func (s *Service) SendChatMessage(ctx context.Context, roomID, text string) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionSendChatMessage, ChatMessage{
		RoomID: roomID,
		Text:   text,
		SentAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// CastVote queues a vote for the given room and option.
func (s *Service) CastVote(ctx context.Context, roomID, optionID string) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionCastVote, Vote{RoomID: roomID, OptionID: optionID})
}

// UpdateProfile queues a profile mutation. fields should carry the full local
// profile state including its updatedAt timestamp so a concurrent remote edit
// can be merged.
func (s *Service) UpdateProfile(ctx context.Context, fields map[string]any) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionUpdateProfile, fields)
}

// SendFriendRequest queues a friend request to userID.
func (s *Service) SendFriendRequest(ctx context.Context, userID string) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionSendFriendRequest, FriendRequest{UserID: userID})
}

// RespondFriendRequest queues an accept or decline of a friend request.
func (s *Service) RespondFriendRequest(ctx context.Context, requestID string, accept bool) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionRespondFriendRequest, FriendResponse{RequestID: requestID, Accept: accept})
}

// RemoveFriend queues removal of a friend.
func (s *Service) RemoveFriend(ctx context.Context, userID string) (*queue.PendingAction, error) {
	return s.enqueue(ctx, queue.ActionRemoveFriend, FriendRequest{UserID: userID})
}

// ForceSync drains the queue now, failing fast when offline.
func (s *Service) ForceSync(ctx context.Context) (*syncer.Summary, error) {
	return s.engine.ForceSync(ctx)
}

// Status reports the current state of the subsystem.
func (s *Service) Status() Status {
	return Status{
		Online:           s.monitor.IsOnline(),
		PendingActions:   s.queue.Count(),
		SyncInProgress:   s.engine.InProgress(),
		LastSyncTime:     s.engine.LastSyncTime(),
		PendingConflicts: len(s.engine.PendingConflicts()),
		SyncErrors:       len(s.engine.Errors()),
	}
}

// SyncErrors returns the recent drop records, newest last.
func (s *Service) SyncErrors() []*syncer.SyncError {
	return s.engine.Errors()
}

// Loader exposes the progressive loader for screen-level data plans.
func (s *Service) Loader() *loader.Loader {
	return s.loader
}

// CacheStats reports local cache occupancy.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// InvalidateCache drops cached entries whose key contains substr.
func (s *Service) InvalidateCache(ctx context.Context, substr string) int {
	return s.cache.InvalidatePattern(ctx, substr)
}

// ClearCache empties the local cache.
func (s *Service) ClearCache(ctx context.Context) {
	s.cache.Clear(ctx)
}

package loader

import (
	"context"
	"fmt"
)

// Bundles are the pre-composed load plans the app fires at well known
// moments: login, entering a room, opening the social tab.

// PreloadCriticalData loads what the home screen needs before anything else.
func (l *Loader) PreloadCriticalData(ctx context.Context, userID string) *Result {
	return l.LoadData(ctx, []Request{
		{
			ID:           userID,
			ResourceType: "profile",
			Endpoint:     "/users/" + userID,
			Priority:     PriorityCritical,
			Order:        0,
		},
		{
			ID:           "active-rooms",
			ResourceType: "room",
			Endpoint:     "/rooms",
			Priority:     PriorityCritical,
			Order:        1,
			Params:       map[string]string{"status": "active"},
		},
		{
			ID:           "friends",
			ResourceType: "friend",
			Endpoint:     "/friends",
			Priority:     PriorityHigh,
			Order:        2,
		},
	})
}

// LoadGameData loads everything needed to render a game room.
func (l *Loader) LoadGameData(ctx context.Context, roomID string) *Result {
	return l.LoadData(ctx, []Request{
		{
			ID:           roomID,
			ResourceType: "room",
			Endpoint:     "/rooms/" + roomID,
			Priority:     PriorityCritical,
			Order:        0,
		},
		{
			ID:           roomID + ":state",
			ResourceType: "game_state",
			Endpoint:     fmt.Sprintf("/rooms/%s/state", roomID),
			Priority:     PriorityCritical,
			Order:        1,
		},
		{
			ID:           roomID + ":players",
			ResourceType: "player",
			Endpoint:     fmt.Sprintf("/rooms/%s/players", roomID),
			Priority:     PriorityHigh,
			Order:        2,
		},
		{
			ID:           roomID + ":chat",
			ResourceType: "chat",
			Endpoint:     fmt.Sprintf("/rooms/%s/chat", roomID),
			Priority:     PriorityMedium,
			Order:        3,
			Params:       map[string]string{"limit": "50"},
		},
	})
}

// LoadSocialData loads the social tab: friends, requests, achievements.
func (l *Loader) LoadSocialData(ctx context.Context) *Result {
	return l.LoadData(ctx, []Request{
		{
			ID:           "friends",
			ResourceType: "friend",
			Endpoint:     "/friends",
			Priority:     PriorityHigh,
			Order:        0,
		},
		{
			ID:           "friend-requests",
			ResourceType: "friend",
			Endpoint:     "/friends/requests",
			Priority:     PriorityHigh,
			Order:        1,
		},
		{
			ID:           "achievements",
			ResourceType: "achievement",
			Endpoint:     "/achievements",
			Priority:     PriorityLow,
			Order:        2,
		},
	})
}

// Prefetch warms the cache for an upcoming screen. Failures are logged and
// swallowed, prefetching is opportunistic.
func (l *Loader) Prefetch(ctx context.Context, screen string, userID string) {
	var res *Result
	switch screen {
	case "home":
		res = l.PreloadCriticalData(ctx, userID)
	case "social":
		res = l.LoadSocialData(ctx)
	default:
		l.log.Debug(ctx, "no prefetch plan for screen", "screen", screen)
		return
	}
	if err := res.Err(); err != nil {
		l.log.Debug(ctx, "prefetch incomplete", "screen", screen, "error", err)
	}
}

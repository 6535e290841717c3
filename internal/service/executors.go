package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/partysync/internal/api"
	"github.com/dmitrijs2005/partysync/internal/queue"
	"github.com/dmitrijs2005/partysync/internal/syncer"
)

// Payload shapes for the built-in action types. They marshal to the wire
// format the backend expects.

type ChatMessage struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
	SentAt string `json:"sentAt,omitempty"`
}

type Vote struct {
	RoomID   string `json:"roomId"`
	OptionID string `json:"optionId"`
}

type FriendRequest struct {
	UserID string `json:"userId"`
}

type FriendResponse struct {
	RequestID string `json:"requestId"`
	Accept    bool   `json:"accept"`
}

// RegisterDefaultExecutors wires every built-in action type to its API call.
// Each executor returns the server's response payload so the sync engine can
// reconcile it against local state where that applies.
func RegisterDefaultExecutors(reg *syncer.Registry, client api.Client) {
	reg.Register(queue.ActionSendChatMessage, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var m ChatMessage
		if err := json.Unmarshal(a.Payload, &m); err != nil {
			return nil, fmt.Errorf("decoding chat message: %w", err)
		}
		resp, err := client.Post(ctx, fmt.Sprintf("/rooms/%s/chat", m.RoomID), m)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})

	reg.Register(queue.ActionCastVote, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var v Vote
		if err := json.Unmarshal(a.Payload, &v); err != nil {
			return nil, fmt.Errorf("decoding vote: %w", err)
		}
		resp, err := client.Post(ctx, fmt.Sprintf("/rooms/%s/votes", v.RoomID), v)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})

	reg.Register(queue.ActionUpdateProfile, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var fields map[string]any
		if err := json.Unmarshal(a.Payload, &fields); err != nil {
			return nil, fmt.Errorf("decoding profile update: %w", err)
		}
		resp, err := client.Put(ctx, "/users/me", fields)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})

	reg.Register(queue.ActionSendFriendRequest, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var r FriendRequest
		if err := json.Unmarshal(a.Payload, &r); err != nil {
			return nil, fmt.Errorf("decoding friend request: %w", err)
		}
		resp, err := client.Post(ctx, "/friends/requests", r)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})

	reg.Register(queue.ActionRespondFriendRequest, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var r FriendResponse
		if err := json.Unmarshal(a.Payload, &r); err != nil {
			return nil, fmt.Errorf("decoding friend response: %w", err)
		}
		resp, err := client.Post(ctx, fmt.Sprintf("/friends/requests/%s/respond", r.RequestID), r)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})

	reg.Register(queue.ActionRemoveFriend, func(ctx context.Context, a *queue.PendingAction) (json.RawMessage, error) {
		var r FriendRequest
		if err := json.Unmarshal(a.Payload, &r); err != nil {
			return nil, fmt.Errorf("decoding friend removal: %w", err)
		}
		resp, err := client.Delete(ctx, "/friends/"+r.UserID)
		if err != nil {
			return nil, err
		}
		return resp.Data, nil
	})
}

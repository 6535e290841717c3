package queue

import (
	"encoding/json"
	"time"
)

// ActionType tags the kind of mutation a pending action carries.
type ActionType string

const (
	ActionSendChatMessage      ActionType = "chat_message"
	ActionCastVote             ActionType = "cast_vote"
	ActionUpdateProfile        ActionType = "update_profile"
	ActionSendFriendRequest    ActionType = "send_friend_request"
	ActionRespondFriendRequest ActionType = "respond_friend_request"
	ActionRemoveFriend         ActionType = "remove_friend"
)

// Priority orders pending actions within a sync pass. Higher drains first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Policy is the per-action-type enqueue default: how urgent the action is and
// how many failed attempts it survives before being dropped.
type Policy struct {
	Priority   Priority
	MaxRetries int
}

// PolicyFor returns the retry/priority policy for an action type. Votes are
// the most urgent thing a player does; social-graph changes can wait.
func PolicyFor(t ActionType) Policy {
	switch t {
	case ActionCastVote:
		return Policy{Priority: PriorityHigh, MaxRetries: 5}
	case ActionSendChatMessage:
		return Policy{Priority: PriorityHigh, MaxRetries: 3}
	case ActionUpdateProfile:
		return Policy{Priority: PriorityMedium, MaxRetries: 2}
	default:
		return Policy{Priority: PriorityLow, MaxRetries: 2}
	}
}

// PendingAction is a queued mutation awaiting remote execution.
type PendingAction struct {
	ID         string          `json:"id"`
	Type       ActionType      `json:"action_type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Priority   Priority        `json:"priority"`
}

// Clone returns a deep-enough copy: the payload is shared (callers must not
// mutate it), all scalar fields are copied.
func (a *PendingAction) Clone() *PendingAction {
	c := *a
	return &c
}

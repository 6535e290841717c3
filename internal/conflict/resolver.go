// Package conflict reconciles divergent local and remote copies of the same
// logical entity after an offline mutation is replayed.
//
// Resolution is a pure function of its inputs: profile-like entities are
// field-merged (newer side wins scalars, monotonic counters never regress),
// anything describing live shared game state takes the server copy, and
// unknown entity types default to remote-wins so stale local data is never
// silently preferred.
package conflict

import (
	"encoding/json"
	"fmt"
)

// EntityType classifies the entity a conflict concerns.
type EntityType string

const (
	EntityProfile   EntityType = "profile"
	EntityGameState EntityType = "game_state"
	EntityUnknown   EntityType = "unknown"
)

// Strategy selects how a conflict for an entity type is reconciled.
type Strategy string

const (
	// StrategyMerge merges field-by-field: scalar fields from the side with
	// the newer modification timestamp, counter fields by per-field maximum.
	StrategyMerge Strategy = "merge"

	// StrategyRemoteWins discards the local copy entirely.
	StrategyRemoteWins Strategy = "remote_wins"
)

// Resolution is the terminal outcome recorded for a conflict.
type Resolution string

const (
	ResolutionPending Resolution = "pending"
	ResolutionLocal   Resolution = "local"
	ResolutionRemote  Resolution = "remote"
	ResolutionMerged  Resolution = "merged"
)

// timestampField is the document key holding the last-modified timestamp on
// merge-capable entities.
const timestampField = "updatedAt"

// Resolver applies the per-entity-type reconciliation policy. It holds only
// configuration and is safe for concurrent use.
type Resolver struct {
	strategies    map[EntityType]Strategy
	counterFields map[string]bool
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithStrategy overrides the strategy for an entity type. The entity
// allowlist is deliberately configuration, not a fixed set.
func WithStrategy(t EntityType, s Strategy) Option {
	return func(r *Resolver) { r.strategies[t] = s }
}

// WithCounterFields replaces the set of monotonic counter fields merged by
// per-field maximum.
func WithCounterFields(fields ...string) Option {
	return func(r *Resolver) {
		r.counterFields = make(map[string]bool, len(fields))
		for _, f := range fields {
			r.counterFields[f] = true
		}
	}
}

// NewResolver builds a Resolver with the default policy table: profiles
// merge, game state is server-authoritative.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		strategies: map[EntityType]Strategy{
			EntityProfile:   StrategyMerge,
			EntityGameState: StrategyRemoteWins,
		},
		counterFields: map[string]bool{
			"gamesPlayed": true,
			"gamesWon":    true,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reconciles local and remote copies of an entity. It never mutates
// its inputs and, given the same inputs, always returns the same result.
func (r *Resolver) Resolve(local, remote map[string]any, t EntityType) (map[string]any, Resolution) {
	strategy, ok := r.strategies[t]
	if !ok {
		strategy = StrategyRemoteWins
	}

	switch strategy {
	case StrategyMerge:
		return r.merge(local, remote)
	default:
		return copyMap(remote), ResolutionRemote
	}
}

// ResolveRaw is Resolve for JSON-encoded payloads.
func (r *Resolver) ResolveRaw(local, remote json.RawMessage, t EntityType) (json.RawMessage, Resolution, error) {
	var l, rm map[string]any
	if err := json.Unmarshal(local, &l); err != nil {
		return nil, ResolutionPending, fmt.Errorf("failed to decode local data: %w", err)
	}
	if err := json.Unmarshal(remote, &rm); err != nil {
		return nil, ResolutionPending, fmt.Errorf("failed to decode remote data: %w", err)
	}

	resolved, resolution := r.Resolve(l, rm, t)
	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, ResolutionPending, fmt.Errorf("failed to encode resolved data: %w", err)
	}
	return data, resolution, nil
}

// merge takes scalar fields from the side with the newer updatedAt and
// counter fields as the per-field maximum of both sides.
func (r *Resolver) merge(local, remote map[string]any) (map[string]any, Resolution) {
	newer, older := remote, local
	if timestamp(local) > timestamp(remote) {
		newer, older = local, remote
	}

	out := copyMap(older)
	for k, v := range newer {
		out[k] = v
	}

	for field := range r.counterFields {
		lv, lok := numeric(local[field])
		rv, rok := numeric(remote[field])
		switch {
		case lok && rok:
			out[field] = max(lv, rv)
		case lok:
			out[field] = lv
		case rok:
			out[field] = rv
		}
	}

	return out, ResolutionMerged
}

func timestamp(m map[string]any) float64 {
	v, _ := numeric(m[timestampField])
	return v
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package conflict

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/google/uuid"
)

// ErrAlreadyResolved is returned by MarkResolved for a record that has
// already reached a terminal resolution.
var ErrAlreadyResolved = errors.New("conflict already resolved")

// Record captures one detected divergence between local and remote copies of
// an entity. Resolution starts pending and transitions exactly once to a
// terminal value.
type Record struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	LocalData  json.RawMessage `json:"local_data"`
	RemoteData json.RawMessage `json:"remote_data"`
	Resolution Resolution      `json:"resolution"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Tracker keeps conflict records for UI reporting. Resolved records are
// archived; Pending returns only those still awaiting a terminal resolution.
type Tracker struct {
	mu      sync.Mutex
	records []*Record
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Add registers a newly detected conflict and returns its record.
func (t *Tracker) Add(entityType EntityType, local, remote json.RawMessage) *Record {
	r := &Record{
		ID:         uuid.NewString(),
		EntityType: entityType,
		LocalData:  local,
		RemoteData: remote,
		Resolution: ResolutionPending,
		DetectedAt: time.Now(),
	}
	t.mu.Lock()
	t.records = append(t.records, r)
	t.mu.Unlock()
	return r
}

// MarkResolved transitions a record from pending to the given terminal
// resolution. A second transition attempt is an error.
func (t *Tracker) MarkResolved(id string, resolution Resolution) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.records {
		if r.ID == id {
			if r.Resolution != ResolutionPending {
				return ErrAlreadyResolved
			}
			r.Resolution = resolution
			return nil
		}
	}
	return common.ErrNotFound
}

// Pending returns copies of all records still awaiting resolution.
func (t *Tracker) Pending() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Record
	for _, r := range t.records {
		if r.Resolution == ResolutionPending {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

// Package cache implements the local cache store: a TTL-bounded,
// size-bounded key/value cache with least-recently-used eviction, mirrored to
// durable storage so a cold restart can rehydrate unexpired entries.
//
// Expiry is lazy: a read past the deadline deletes the entry and reports a
// miss. Cleanup offers an optional periodic sweep on top.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/dmitrijs2005/partysync/internal/storage"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const persistKey = "cache:entries"

// entry is one cached value with its bookkeeping.
type entry struct {
	Data         json.RawMessage `json:"data"`
	Expiry       time.Time       `json:"expiry"`
	Size         int             `json:"size"`
	LastAccessed time.Time       `json:"last_accessed"`
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.Expiry)
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	EntryCount         int     `json:"entry_count"`
	BytesUsed          int     `json:"bytes_used"`
	MaxBytes           int     `json:"max_bytes"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// Cache is the process-wide local cache store.
type Cache struct {
	store      storage.Store
	log        logging.Logger
	maxBytes   int
	defaultTTL time.Duration

	mu        sync.Mutex
	index     *simplelru.LRU[string, *entry]
	bytesUsed int
}

// New builds a Cache. maxEntries bounds the index (a secondary guard; the
// primary bound is maxBytes), defaultTTL applies when Set is called with a
// zero TTL.
func New(store storage.Store, maxBytes, maxEntries int, defaultTTL time.Duration, log logging.Logger) (*Cache, error) {
	if log == nil {
		log = logging.Discard()
	}
	c := &Cache{
		store:      store,
		log:        log,
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
	}
	index, err := simplelru.NewLRU[string, *entry](maxEntries, func(key string, e *entry) {
		c.bytesUsed -= e.Size
	})
	if err != nil {
		return nil, err
	}
	c.index = index
	return c, nil
}

// Load rehydrates unexpired entries from the durable mirror. Entries already
// expired at load time are discarded.
func (c *Cache) Load(ctx context.Context) error {
	raw, err := c.store.GetItem(ctx, persistKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}

	var entries map[string]*entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.log.Warn(ctx, "discarding corrupt cache mirror", "error", err)
		return nil
	}

	now := time.Now()
	c.mu.Lock()
	for key, e := range entries {
		if e.expired(now) {
			continue
		}
		c.index.Add(key, e)
		c.bytesUsed += e.Size
	}
	c.mu.Unlock()
	return nil
}

// Set stores value under key with the given TTL (zero means the default
// TTL). A value that alone exceeds the cache capacity is rejected with a log
// line; eviction frees space for anything else.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Error(ctx, "failed to encode cache value", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	size := len(key) + len(data)
	if size > c.maxBytes {
		c.log.Warn(ctx, "value exceeds cache capacity, not cached", "key", key, "size", size, "max", c.maxBytes)
		return
	}

	now := time.Now()
	e := &entry{
		Data:         data,
		Expiry:       now.Add(ttl),
		Size:         size,
		LastAccessed: now,
	}

	c.mu.Lock()
	// Replacing an entry first returns its bytes via the evict callback.
	c.index.Remove(key)
	for c.bytesUsed+size > c.maxBytes && c.index.Len() > 0 {
		c.index.RemoveOldest()
	}
	c.index.Add(key, e)
	c.bytesUsed += size
	c.persistLocked(ctx)
	c.mu.Unlock()
}

// Get returns the cached value for key, or ok=false when absent or expired.
// An expired entry is deleted as a side effect.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		c.index.Remove(key)
		c.persistLocked(ctx)
		return nil, false
	}
	e.LastAccessed = now
	return e.Data, true
}

// GetJSON decodes the cached value for key into out.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn(ctx, "failed to decode cached value", "key", key, "error", err)
		return false
	}
	return true
}

// Has reports whether key is present and unexpired, without refreshing its
// recency.
func (c *Cache) Has(ctx context.Context, key string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index.Peek(key)
	if !ok {
		return false
	}
	if e.expired(now) {
		c.index.Remove(key)
		c.persistLocked(ctx)
		return false
	}
	return true
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	if c.index.Remove(key) {
		c.persistLocked(ctx)
	}
	c.mu.Unlock()
}

// Clear removes everything.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.index.Purge()
	c.persistLocked(ctx)
	c.mu.Unlock()
}

// Keys returns all keys, least recently used first.
func (c *Cache) Keys(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Keys()
}

// InvalidatePattern removes every entry whose key contains substr.
func (c *Cache) InvalidatePattern(ctx context.Context, substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.index.Keys() {
		if strings.Contains(key, substr) {
			c.index.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked(ctx)
	}
	return removed
}

// Cleanup sweeps out expired entries and returns how many were removed.
func (c *Cache) Cleanup(ctx context.Context) int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.index.Keys() {
		if e, ok := c.index.Peek(key); ok && e.expired(now) {
			c.index.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked(ctx)
	}
	return removed
}

// Stats returns current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		EntryCount: c.index.Len(),
		BytesUsed:  c.bytesUsed,
		MaxBytes:   c.maxBytes,
	}
	if c.maxBytes > 0 {
		s.UtilizationPercent = float64(c.bytesUsed) / float64(c.maxBytes) * 100
	}
	return s
}

// persistLocked mirrors the cache to durable storage, best-effort.
func (c *Cache) persistLocked(ctx context.Context) {
	entries := make(map[string]*entry, c.index.Len())
	for _, key := range c.index.Keys() {
		if e, ok := c.index.Peek(key); ok {
			entries[key] = e
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		c.log.Error(ctx, "failed to encode cache mirror", "error", err)
		return
	}
	if err := c.store.SetItem(ctx, persistKey, string(data)); err != nil {
		c.log.Warn(ctx, "failed to persist cache mirror, keeping in-memory state", "error", err)
	}
}

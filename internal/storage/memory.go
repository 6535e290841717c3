package storage

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/partysync/internal/common"
)

// MemoryStore is an in-memory Store used in tests and as a degraded fallback
// when the durable database cannot be opened.
//
// FailWrites makes every mutating call return an error; queue and cache tests
// use it to verify that persistence failures never propagate.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]string
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (s *MemoryStore) GetItem(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) SetItem(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.items[key] = value
	return nil
}

func (s *MemoryStore) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) MultiRemove(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	return keys, nil
}

package history

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It backs the relay when no database
// is configured; history then lives only as long as the process.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]Entry)}
}

// Append implements Store.
func (s *MemStore) Append(_ context.Context, clientID string, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[clientID] = append(s.entries[clientID], e)
	return nil
}

// Recent implements Store.
func (s *MemStore) Recent(_ context.Context, clientID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[clientID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Entry(nil), all...), nil
}

// Package memory implements store.Store with in-process maps. It backs
// dev mode (no database configured) and unit tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/snackwars/tallyd/internal/model"
	"github.com/snackwars/tallyd/internal/store"
)

type connEntry struct {
	joinedAt  time.Time
	expiresAt time.Time
}

type orderEntry struct {
	order     model.Order
	expiresAt time.Time
}

// MemoryStore implements store.Store with mutex-guarded maps.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]orderEntry
	tallies map[string]int64
	conns   map[string]connEntry
}

var _ store.Store = (*MemoryStore)(nil)

func New() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]orderEntry),
		tallies: make(map[string]int64),
		conns:   make(map[string]connEntry),
	}
}

func (s *MemoryStore) SaveOrder(_ context.Context, o *model.Order, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.OrderID]; exists {
		// Redelivered record; keep the original.
		return nil
	}
	s.orders[o.OrderID] = orderEntry{order: *o, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) IncrementTally(_ context.Context, product string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[product]++
	return s.tallies[product], nil
}

func (s *MemoryStore) TallySnapshot(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64, len(s.tallies))
	for product, count := range s.tallies {
		counts[product] = count
	}
	return counts, nil
}

func (s *MemoryStore) PutConnection(_ context.Context, id string, joinedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = connEntry{joinedAt: joinedAt, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
	return nil
}

func (s *MemoryStore) ListConnections(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, entry := range s.conns {
		if entry.expiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.orders {
		if !entry.expiresAt.After(now) {
			delete(s.orders, id)
			n++
		}
	}
	for id, entry := range s.conns {
		if !entry.expiresAt.After(now) {
			delete(s.conns, id)
			n++
		}
	}
	return n, nil
}

// OrderCount reports the number of retained order records.
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *MemoryStore) Close() error { return nil }

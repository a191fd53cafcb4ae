package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps counters in a mutex-guarded map. State is per-process
// and lost on restart, which is an accepted tradeoff for single-instance
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// NewMemoryStore builds an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Incr bumps the counter for key, starting a fresh window when the previous
// one elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || !entry.resetAt.After(now) {
		entry = memoryEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = entry
		return entry.count, entry.resetAt, nil
	}
	entry.count++
	s.entries[key] = entry
	return entry.count, entry.resetAt, nil
}

// Clear drops the counter for key.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory store before oldest-first eviction.
const DefaultMaxEntries = 4096

// MemoryStore is a mutex-guarded in-process Store with bounded size.
// When full, the entry closest to expiry is evicted to make room.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int
}

// NewMemoryStore creates an in-memory store holding at most maxEntries
// entries. A non-positive maxEntries uses DefaultMaxEntries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &MemoryStore{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
	}
}

// Get returns the entry for key. Expiry is the caller's concern; expired
// entries are still returned until the sweeper removes them.
func (s *MemoryStore) Get(key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]

	return entry, ok, nil
}

// Set stores or replaces the entry for entry.Key.
func (s *MemoryStore) Set(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictSoonestLocked()
	}
	s.entries[entry.Key] = entry

	return nil
}

// Delete removes the entry for key, if any.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}

	return removed
}

// Run sweeps expired entries every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) evictSoonestLocked() {
	var (
		victim string
		oldest time.Time
	)
	for key, entry := range s.entries {
		if victim == "" || entry.ExpiresAt.Before(oldest) {
			victim = key
			oldest = entry.ExpiresAt
		}
	}
	if victim != "" {
		delete(s.entries, victim)
	}
}

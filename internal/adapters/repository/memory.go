package repository

import (
	"context"
	"sync"
	"time"

	"github.com/skybrain/formrelay/internal/domain/ratelimit"
)

// MemoryStore keeps rate limit entries in a process-local map. Restarting the
// process clears every limit.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]ratelimit.Entry
}

var _ ratelimit.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]ratelimit.Entry)}
}

// Hit runs ratelimit.Advance for key under the store lock.
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration, ceiling int) (ratelimit.Entry, bool, error) {
	if key == "" {
		return ratelimit.Entry{}, false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	e, allowed := ratelimit.Advance(e, ok, now, window, ceiling)
	s.entries[key] = e
	return e, allowed, nil
}

// Sweep removes entries whose window ended before now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

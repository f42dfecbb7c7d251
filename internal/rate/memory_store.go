package rate

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type memoryCounter struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process memory.
//
// It is only correct for a single engine instance, and counters do not
// survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
	ops      int
}

// NewMemoryStore returns an empty in-process CounterStore. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{counters: map[string]*memoryCounter{}, now: now}
}

// Increment adds one to key under the store mutex.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweep(now)
	}

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expires) {
		c = &memoryCounter{expires: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.expires.Sub(now), nil
}

// Delete removes keys.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.counters, k)
	}
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expires) {
			delete(s.counters, k)
		}
	}
}

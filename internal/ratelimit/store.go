package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Stats describes one window after pruning.
type Stats struct {
	Count  int
	Oldest time.Time // zero when Count is 0
}

// Store is the shared, ordered timestamp set behind a Limiter.
type Store interface {
	// Admit atomically drops entries older than now-size in every window,
	// and records member at now in all windows only if every window is
	// below its limit. It returns the first full window when denied.
	Admit(ctx context.Context, key string, windows []Window, now time.Time, member string) (bool, *Window, error)

	// Stats prunes one window and reports what remains.
	Stats(ctx context.Context, key string, w Window, now time.Time) (Stats, error)

	// Reset removes every recorded entry for key.
	Reset(ctx context.Context, key string, windows []Window) error
}

// MemoryStore keeps timestamps in process memory. It only coordinates
// callers sharing the same process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time // kept sorted ascending
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]time.Time)}
}

func (s *MemoryStore) Admit(_ context.Context, key string, windows []Window, now time.Time, _ string) (bool, *Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range windows {
		k := storageKey(key, windows[i])
		s.entries[k] = prune(s.entries[k], now.Add(-windows[i].Size))
		if len(s.entries[k]) >= windows[i].Limit {
			w := windows[i]
			return false, &w, nil
		}
	}
	for _, w := range windows {
		k := storageKey(key, w)
		s.entries[k] = insertSorted(s.entries[k], now)
	}
	return true, nil, nil
}

func (s *MemoryStore) Stats(_ context.Context, key string, w Window, now time.Time) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := storageKey(key, w)
	s.entries[k] = prune(s.entries[k], now.Add(-w.Size))
	ts := s.entries[k]
	if len(ts) == 0 {
		return Stats{}, nil
	}
	return Stats{Count: len(ts), Oldest: ts[0]}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string, windows []Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range windows {
		delete(s.entries, storageKey(key, w))
	}
	return nil
}

// prune drops timestamps at or before cutoff.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(cutoff) })
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func insertSorted(ts []time.Time, t time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(t) })
	ts = append(ts, time.Time{})
	copy(ts[i+1:], ts[i:])
	ts[i] = t
	return ts
}

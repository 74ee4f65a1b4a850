package consumed

import (
	"context"
	"sync"
	"time"

	"quorumgate/pkg/platform/sentinel"
)

// MemorySet is the in-process consumed-token set. Expired reservations are
// pruned lazily on access.
type MemorySet struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemorySet constructs an empty set. now may be nil; tests inject a fixed
// clock.
func NewMemorySet(now func() time.Time) *MemorySet {
	if now == nil {
		now = time.Now
	}
	return &MemorySet{expires: make(map[string]time.Time), now: now}
}

func (s *MemorySet) Reserve(_ context.Context, tokenHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[tokenHash]; ok && now.Before(exp) {
		return sentinel.ErrAlreadyUsed
	}
	s.expires[tokenHash] = now.Add(ttl)

	for hash, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, hash)
		}
	}
	return nil
}

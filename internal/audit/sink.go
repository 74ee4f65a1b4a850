package audit

import (
	"context"
	"sync"
)

// Sink receives audit events. Implementations must tolerate being called
// from the worker goroutine only.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// MemorySink keeps events in memory. Default sink for the single-binary
// deployment and for tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything written so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// ByKind returns the written events of one kind.
func (s *MemorySink) ByKind(kind Kind) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"chat-gateway/internal/domain"
)

// UsageStore persists sliding-window counters keyed by (session, subject).
// An absent counter is reported through the found flag, never as an error:
// a counter removed by a concurrent sweep must read as "first request".
type UsageStore interface {
	Get(ctx context.Context, sessionID int64, subjectID string) (domain.UsageCounter, bool, error)
	Put(ctx context.Context, sessionID int64, subjectID string, counter domain.UsageCounter) error
	// Sweep removes counters whose LastSeen is older than the cutoff.
	Sweep(ctx context.Context, olderThan time.Time) error
}

type usageKey struct {
	sessionID int64
	subjectID string
}

// MemoryStore is an in-process UsageStore for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[usageKey]domain.UsageCounter
}

// NewMemoryStore creates an empty in-memory usage store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[usageKey]domain.UsageCounter)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID int64, subjectID string) (domain.UsageCounter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[usageKey{sessionID, subjectID}]
	return c, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID int64, subjectID string, counter domain.UsageCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[usageKey{sessionID, subjectID}] = counter
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.counters {
		if c.LastSeen.Before(olderThan) {
			delete(s.counters, k)
		}
	}
	return nil
}

// Len returns the number of stored counters.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

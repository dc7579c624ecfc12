package history

import (
	"context"
	"sync"

	"GemChat/internal/session"
)

// memoryStore implements session.Store using an in-memory map.
// Used for tests and throwaway sessions.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*session.Record)}
}

// Save implements session.Store.
func (s *memoryStore) Save(ctx context.Context, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so later mutation of the caller's slice does not leak in.
	stored := *rec
	stored.Turns = make([]session.Turn, len(rec.Turns))
	copy(stored.Turns, rec.Turns)

	s.records[rec.ID] = &stored
	return nil
}

// Load implements session.Store.
func (s *memoryStore) Load(ctx context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, nil
	}

	out := *rec
	out.Turns = make([]session.Turn, len(rec.Turns))
	copy(out.Turns, rec.Turns)
	return &out, nil
}

// Close implements session.Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}

package adventure

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// InMemoryStore keeps snapshots in process memory for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	upserts int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.AdventureID) == "" {
		return Record{}, errors.New("adventure id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec = rec.clone()
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.AdventureID] = rec
	s.upserts++
	return rec.clone(), nil
}

func (s *InMemoryStore) Get(_ context.Context, adventureID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[adventureID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

// Upserts reports how many upserts have been accepted.
func (s *InMemoryStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

func (s *InMemoryStore) Close() error { return nil }

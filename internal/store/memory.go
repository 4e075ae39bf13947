package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a map-backed store used in tests and for running without
// durability.
type Memory struct {
	mu   sync.RWMutex
	recs map[uint64]Record
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[uint64]Record)}
}

func (s *Memory) LoadAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (s *Memory) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	s.recs[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *Memory) Update(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *Memory) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	delete(s.recs, id)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error { return nil }

// Get is a test helper; production code goes through LoadAll.
func (s *Memory) Get(id uint64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recs[id]
	return r, ok
}

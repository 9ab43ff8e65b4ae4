// Package overlay keeps policies the backend cannot store: anything with an
// id above the backend's assignable range. Entries live for the lifetime of
// the Store and are never persisted.
package overlay

import (
	"sync"

	"policy-console/internal/model"
)

type Store struct {
	mu    sync.RWMutex
	order []int
	byID  map[int]model.Policy
}

func New() *Store {
	return &Store{byID: make(map[int]model.Policy)}
}

// Upsert inserts p or replaces the entry with the same id. A replaced entry
// keeps its original position.
func (s *Store) Upsert(p model.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.byID[p.ID] = p
}

// Remove deletes the entry for id and reports whether one existed.
func (s *Store) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Get(id int) (model.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// All returns a copy of every entry in insertion order.
func (s *Store) All() []model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Policy, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NextID returns an id greater than floor and than every stored id.
func (s *Store) NextID(floor int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := floor + 1
	for id := range s.byID {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

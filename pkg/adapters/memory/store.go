package memory

import (
	"context"
	"sync"

	"github.com/sbm367/syft/pkg/domain"
)

// Store implements ports.TensorStore in memory.
// Safe for concurrent use.
type Store struct {
	data  map[string]domain.Record
	order []string
	mu    sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Record),
	}
}

// Save persists the record in memory. Tensors are immutable, so the record is
// stored by value without copying its data.
func (s *Store) Save(ctx context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.data[rec.ID] = rec
	return nil
}

// Load retrieves the record from memory.
func (s *Store) Load(ctx context.Context, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[id]
	if !ok {
		return domain.Record{}, domain.ErrTensorNotFound
	}
	return rec, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return nil
	}
	delete(s.data, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the stored records in insertion order.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.Record, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.data[id])
	}
	return records, nil
}

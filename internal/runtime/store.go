package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/observer"
	"github.com/sbm367/syft/pkg/ports"
	"github.com/sbm367/syft/pkg/tensor"
)

// Store is the ordered collection of tensor records owned by a client.
// Every mutation is broadcast through the observer after it is applied and
// before the call returns.
type Store struct {
	mu       sync.RWMutex
	records  []domain.Record
	observer *observer.Observer
	persist  ports.TensorStore
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPersistence writes every mutation through to a ports.TensorStore.
func WithPersistence(p ports.TensorStore) StoreOption {
	return func(s *Store) {
		s.persist = p
	}
}

// WithStoreLogger sets the structured logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store broadcasting through obs.
func NewStore(obs *observer.Observer, opts ...StoreOption) *Store {
	s := &Store{
		observer: obs,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add builds a tensor from raw (nested numeric slices or a *tensor.Tensor),
// appends it under id and returns the updated list.
func (s *Store) Add(ctx context.Context, id string, raw any) ([]domain.Record, error) {
	if id == "" {
		return nil, domain.ErrInvalidTensorID
	}
	t, err := tensor.FromNested(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build tensor %s: %w", id, err)
	}
	rec := domain.Record{ID: id, Tensor: t}

	s.mu.Lock()
	if s.indexLocked(id) >= 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateTensor, id)
	}
	if s.persist != nil {
		if err := s.persist.Save(ctx, rec); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to persist tensor %s: %w", id, err)
		}
	}
	s.records = append(s.records, rec)
	list := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("tensor added", "id", id, "shape", t.Shape(), "count", len(list))
	s.observer.Broadcast(ctx, &domain.TensorAddedEvent{
		EventBase: domain.NewEventBase(domain.EventTensorAdded),
		ID:        id,
		Tensor:    t,
		Tensors:   list,
	})
	return list, nil
}

// Remove deletes the record with the given id and returns the updated list.
func (s *Store) Remove(ctx context.Context, id string) ([]domain.Record, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrTensorNotFound, id)
	}
	if s.persist != nil {
		if err := s.persist.Delete(ctx, id); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to delete persisted tensor %s: %w", id, err)
		}
	}
	s.records = append(s.records[:idx:idx], s.records[idx+1:]...)
	list := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("tensor removed", "id", id, "count", len(list))
	s.observer.Broadcast(ctx, &domain.TensorRemovedEvent{
		EventBase: domain.NewEventBase(domain.EventTensorRemoved),
		ID:        id,
		Tensors:   list,
	})
	return list, nil
}

// Restore loads the persisted records into an empty store, broadcasting a
// tensor-added event for each of them.
func (s *Store) Restore(ctx context.Context) ([]domain.Record, error) {
	if s.persist == nil {
		return s.List(), nil
	}
	persisted, err := s.persist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persisted tensors: %w", err)
	}

	s.mu.Lock()
	if len(s.records) > 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("restore needs an empty store, found %d tensors", len(s.records))
	}
	s.records = append(s.records, persisted...)
	s.mu.Unlock()

	for i, rec := range persisted {
		s.observer.Broadcast(ctx, &domain.TensorAddedEvent{
			EventBase: domain.NewEventBase(domain.EventTensorAdded),
			ID:        rec.ID,
			Tensor:    rec.Tensor,
			Tensors:   append([]domain.Record{}, persisted[:i+1]...),
		})
	}
	s.logger.Info("tensors restored", "count", len(persisted))
	return s.List(), nil
}

// List returns a copy of the records in insertion order.
func (s *Store) List() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get looks a record up by id.
func (s *Store) Get(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.records[idx], true
	}
	return domain.Record{}, false
}

// Index returns the insertion position of id among the present records,
// or -1 when absent.
func (s *Store) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) indexLocked(id string) int {
	for i, rec := range s.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []domain.Record {
	return append([]domain.Record{}, s.records...)
}

package ports

import (
	"context"

	"github.com/sbm367/syft/pkg/domain"
)

// TensorStore defines the interface for persisting tensor records.
// This allows a client to restore its tensors after a restart.
type TensorStore interface {
	// Save persists a record. Saving an existing id replaces its tensor
	// and keeps its original position.
	Save(ctx context.Context, rec domain.Record) error

	// Load retrieves a record by id.
	// Returns domain.ErrTensorNotFound if the id does not exist.
	Load(ctx context.Context, id string) (domain.Record, error)

	// Delete removes a record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every record in insertion order.
	List(ctx context.Context) ([]domain.Record, error)
}

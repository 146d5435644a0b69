package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/observer"
	"github.com/sbm367/syft/pkg/tensor"
)

// Runner applies registry operations to tensors resolved from a Store.
type Runner struct {
	store    *Store
	registry *tensor.Registry
	observer *observer.Observer
	logger   *slog.Logger
}

// NewRunner creates a runner. A nil registry selects tensor.DefaultRegistry.
func NewRunner(store *Store, registry *tensor.Registry, obs *observer.Observer, logger *slog.Logger) *Runner {
	if registry == nil {
		registry = tensor.DefaultRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:    store,
		registry: registry,
		observer: obs,
		logger:   logger,
	}
}

// Registry returns the operation registry in use.
func (r *Runner) Registry() *tensor.Registry {
	return r.registry
}

// Run resolves every operand id, applies funcName and broadcasts a
// run-operation event with the result. Failures broadcast nothing.
func (r *Runner) Run(ctx context.Context, funcName string, operandIDs []string) (*tensor.Tensor, error) {
	result, err := r.apply(funcName, operandIDs)
	if err != nil {
		return nil, err
	}
	r.emit(ctx, funcName, operandIDs, result)
	return result, nil
}

// RunInto is Run followed by storing the result under resultID. The
// run-operation event is broadcast only once the result is stored, after its
// tensor-added event.
func (r *Runner) RunInto(ctx context.Context, funcName string, operandIDs []string, resultID string) (*tensor.Tensor, error) {
	if resultID == "" {
		return nil, fmt.Errorf("result of %s: %w", funcName, domain.ErrInvalidTensorID)
	}
	if _, exists := r.store.Get(resultID); exists {
		return nil, fmt.Errorf("result of %s: %w: %s", funcName, domain.ErrDuplicateTensor, resultID)
	}

	result, err := r.apply(funcName, operandIDs)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.Add(ctx, resultID, result); err != nil {
		return nil, fmt.Errorf("failed to store result of %s: %w", funcName, err)
	}
	r.emit(ctx, funcName, operandIDs, result)
	return result, nil
}

func (r *Runner) apply(funcName string, operandIDs []string) (*tensor.Tensor, error) {
	if _, ok := r.registry.Lookup(funcName); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, funcName)
	}

	operands := make([]*tensor.Tensor, len(operandIDs))
	for i, id := range operandIDs {
		rec, ok := r.store.Get(id)
		if !ok {
			return nil, fmt.Errorf("operand %d of %s: %w: %s", i, funcName, domain.ErrTensorNotFound, id)
		}
		operands[i] = rec.Tensor
	}

	result, err := r.registry.Apply(funcName, operands...)
	if err != nil {
		r.logger.Debug("operation failed", "func", funcName, "operands", operandIDs, "error", err)
		return nil, err
	}
	return result, nil
}

func (r *Runner) emit(ctx context.Context, funcName string, operandIDs []string, result *tensor.Tensor) {
	r.logger.Debug("operation run", "func", funcName, "operands", operandIDs, "shape", result.Shape())
	r.observer.Broadcast(ctx, &domain.OperationEvent{
		EventBase: domain.NewEventBase(domain.EventRunOperation),
		Func:      funcName,
		Operands:  append([]string{}, operandIDs...),
		Result:    result,
	})
}

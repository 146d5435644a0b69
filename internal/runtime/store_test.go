package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sbm367/syft/internal/runtime"
	"github.com/sbm367/syft/pkg/adapters/memory"
	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/observer"
	"github.com/sbm367/syft/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matrix = [][]float64{{1, 2}, {3, 4}}

func TestStore_AddAndLookup(t *testing.T) {
	ctx := context.Background()
	store := runtime.NewStore(observer.New())

	assert.Empty(t, store.List())

	list, err := store.Add(ctx, "first-tensor", matrix)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first-tensor", list[0].ID)

	_, err = store.Add(ctx, "second-tensor", matrix)
	require.NoError(t, err)
	_, err = store.Add(ctx, "third-tensor", matrix)
	require.NoError(t, err)

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 1, store.Index("second-tensor"))
	assert.Equal(t, -1, store.Index("missing"))

	rec, ok := store.Get("first-tensor")
	require.True(t, ok)
	assert.Equal(t, "first-tensor", rec.ID)
	assert.Equal(t, 4, rec.Tensor.Size())

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := runtime.NewStore(observer.New())

	_, err := store.Add(ctx, "a", matrix)
	require.NoError(t, err)
	_, err = store.Add(ctx, "b", matrix)
	require.NoError(t, err)

	list, err := store.Remove(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, domain.IDs(list))
	assert.Equal(t, 0, store.Index("b"), "indexes follow the remaining tensors")

	_, ok := store.Get("a")
	assert.False(t, ok)

	_, err = store.Remove(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrTensorNotFound)
}

func TestStore_Rejections(t *testing.T) {
	ctx := context.Background()
	obs := observer.New()
	events := 0
	obs.Subscribe(domain.EventTensorAdded, func(ctx context.Context, e domain.Event) { events++ })
	store := runtime.NewStore(obs)

	_, err := store.Add(ctx, "", matrix)
	assert.ErrorIs(t, err, domain.ErrInvalidTensorID)

	_, err = store.Add(ctx, "bad", []any{[]any{1.0}, 2.0})
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)

	_, err = store.Add(ctx, "dup", matrix)
	require.NoError(t, err)
	_, err = store.Add(ctx, "dup", [][]float64{{9}})
	assert.ErrorIs(t, err, domain.ErrDuplicateTensor)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, events, "rejected mutations broadcast nothing")

	rec, _ := store.Get("dup")
	assert.Equal(t, []float64{1, 2, 3, 4}, rec.Tensor.Data())
}

func TestStore_Events(t *testing.T) {
	ctx := context.Background()
	obs := observer.New()
	store := runtime.NewStore(obs)

	var added []*domain.TensorAddedEvent
	var removed []*domain.TensorRemovedEvent
	obs.Subscribe(domain.EventTensorAdded, func(ctx context.Context, e domain.Event) {
		ev := e.(*domain.TensorAddedEvent)
		// The mutation is visible to handlers.
		_, ok := store.Get(ev.ID)
		assert.True(t, ok)
		added = append(added, ev)
	})
	obs.Subscribe(domain.EventTensorRemoved, func(ctx context.Context, e domain.Event) {
		removed = append(removed, e.(*domain.TensorRemovedEvent))
	})

	_, err := store.Add(ctx, "first-tensor", matrix)
	require.NoError(t, err)
	_, err = store.Remove(ctx, "first-tensor")
	require.NoError(t, err)

	require.Len(t, added, 1)
	assert.Equal(t, "first-tensor", added[0].ID)
	assert.Equal(t, 4, added[0].Tensor.Size())
	assert.Len(t, added[0].Tensors, 1)
	assert.Equal(t, domain.EventTensorAdded, added[0].Type())

	require.Len(t, removed, 1)
	assert.Equal(t, "first-tensor", removed[0].ID)
	assert.Empty(t, removed[0].Tensors)
}

type failingStore struct {
	*memory.Store
}

func (f *failingStore) Save(ctx context.Context, rec domain.Record) error {
	return errors.New("disk full")
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	persisted := memory.NewStore()

	store := runtime.NewStore(observer.New(), runtime.WithPersistence(persisted))
	_, err := store.Add(ctx, "w", matrix)
	require.NoError(t, err)
	_, err = store.Add(ctx, "b", []float64{1})
	require.NoError(t, err)
	_, err = store.Remove(ctx, "b")
	require.NoError(t, err)

	records, err := persisted.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, domain.IDs(records))

	t.Run("restore", func(t *testing.T) {
		obs := observer.New()
		var restored []string
		obs.Subscribe(domain.EventTensorAdded, func(ctx context.Context, e domain.Event) {
			restored = append(restored, e.(*domain.TensorAddedEvent).ID)
		})

		fresh := runtime.NewStore(obs, runtime.WithPersistence(persisted))
		list, err := fresh.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"w"}, domain.IDs(list))
		assert.Equal(t, []string{"w"}, restored)

		_, err = fresh.Restore(ctx)
		assert.Error(t, err, "restore into a populated store")
	})

	t.Run("failed write leaves memory untouched", func(t *testing.T) {
		failing := &failingStore{Store: memory.NewStore()}
		store := runtime.NewStore(observer.New(), runtime.WithPersistence(failing))

		_, err := store.Add(ctx, "x", matrix)
		assert.ErrorContains(t, err, "disk full")
		assert.Equal(t, 0, store.Len())
	})
}

package ports

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sbm367/syft/pkg/domain"
	"github.com/sbm367/syft/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTensorStoreContract runs a suite of tests to verify that a TensorStore
// implementation adheres to the defined interface contract.
func RunTensorStoreContract(t *testing.T, store TensorStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405") + "-"

	record := func(id string, values ...float64) domain.Record {
		x, err := tensor.New([]int{len(values)}, values)
		require.NoError(t, err)
		return domain.Record{ID: prefix + id, Tensor: x}
	}

	t.Run("Save and Load", func(t *testing.T) {
		rec := record("a", 1, 2, 3)

		err := store.Save(ctx, rec)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, rec.ID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.ID, loaded.ID)
		assert.True(t, rec.Tensor.Equal(loaded.Tensor), "got %v, want %v", loaded.Tensor, rec.Tensor)

		require.NoError(t, store.Delete(ctx, rec.ID))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrTensorNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := record("b", 4)
		require.NoError(t, store.Save(ctx, rec))

		err := store.Delete(ctx, rec.ID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, rec.ID)
		assert.ErrorIs(t, err, domain.ErrTensorNotFound, "Load after Delete should return ErrTensorNotFound")

		assert.NoError(t, store.Delete(ctx, rec.ID), "Delete of a missing id is a no-op")
	})

	t.Run("List keeps insertion order", func(t *testing.T) {
		first, second, third := record("1", 1), record("2", 2), record("3", 3)
		for _, rec := range []domain.Record{first, second, third} {
			require.NoError(t, store.Save(ctx, rec))
		}
		defer func() {
			for _, rec := range []domain.Record{first, second, third} {
				_ = store.Delete(ctx, rec.ID)
			}
		}()

		// Re-saving keeps the original position.
		require.NoError(t, store.Save(ctx, record("1", 10)))

		records, err := store.List(ctx)
		require.NoError(t, err)

		var ids []string
		for _, rec := range records {
			if strings.HasPrefix(rec.ID, prefix) {
				ids = append(ids, rec.ID)
			}
		}
		assert.Equal(t, []string{first.ID, second.ID, third.ID}, ids)

		loaded, err := store.Load(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, []float64{10}, loaded.Tensor.Data())
	})

	t.Run("List includes every id", func(t *testing.T) {
		rec := record("x", 7)
		rec.ID = "tmp-" + rec.ID
		require.NoError(t, store.Save(ctx, rec))
		defer func() { _ = store.Delete(ctx, rec.ID) }()

		records, err := store.List(ctx)
		require.NoError(t, err)

		found := false
		for _, r := range records {
			found = found || r.ID == rec.ID
		}
		assert.True(t, found, "List should return %s", rec.ID)
	})

	t.Run("Non-finite values", func(t *testing.T) {
		rec := record("nan", math.NaN(), math.Inf(1), math.Inf(-1))
		require.NoError(t, store.Save(ctx, rec))
		defer func() { _ = store.Delete(ctx, rec.ID) }()

		loaded, err := store.Load(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, rec.Tensor.Equal(loaded.Tensor), "got %v, want %v", loaded.Tensor, rec.Tensor)
	})
}

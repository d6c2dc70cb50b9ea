package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/kyc/models"
)

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Due lists overdue deadlines earliest first", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Put(ctx, "late", base.Add(2*time.Minute)))
		require.NoError(t, store.Put(ctx, "early", base.Add(time.Minute)))
		require.NoError(t, store.Put(ctx, "future", base.Add(time.Hour)))

		due, err := store.Due(ctx, base.Add(5*time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []models.Deadline{
			{SessionID: "early", DueAt: base.Add(time.Minute)},
			{SessionID: "late", DueAt: base.Add(2 * time.Minute)},
		}, due)

		due, err = store.Due(ctx, base.Add(5*time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, due, 1)
	})

	t.Run("Put replaces the earlier deadline", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Put(ctx, "abc", base))
		require.NoError(t, store.Put(ctx, "abc", base.Add(time.Hour)))

		due, err := store.Due(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("Remove ignores a replaced deadline", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Put(ctx, "abc", base))
		require.NoError(t, store.Put(ctx, "abc", base.Add(time.Hour)))

		require.NoError(t, store.Remove(ctx, "abc", base))
		due, err := store.Due(ctx, base.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, due, 1)

		require.NoError(t, store.Remove(ctx, "abc", base.Add(time.Hour)))
		due, err = store.Due(ctx, base.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("Delete drops the deadline", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Put(ctx, "abc", base))
		require.NoError(t, store.Delete(ctx, "abc"))

		due, err := store.Due(ctx, base.Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}

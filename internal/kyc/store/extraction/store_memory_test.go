package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/kyc/models"
)

func record(id models.SessionID, status models.ExtractionStatus) *models.ExtractionRecord {
	return &models.ExtractionRecord{
		SessionID:       id,
		Fields:          models.ExtractedFields{"FIRST_NAME": "JANE", "LAST_NAME": "DOE"},
		FaceBoundingBox: &models.BoundingBox{Width: 0.2, Height: 0.3, Left: 0.1, Top: 0.1},
		Status:          status,
		Document:        models.ObjectRef{Bucket: "docs", Key: string(id) + "/passport.png"},
		UpdatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("FindBySessionID missing returns ErrNotFound", func(t *testing.T) {
		_, err := NewInMemory().FindBySessionID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Upsert replaces the previous record", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Upsert(ctx, record("abc", models.ExtractionOCRSuccessful)))

		replacement := record("abc", models.ExtractionOCRAndFaceSuccess)
		replacement.Fields = models.ExtractedFields{"DOCUMENT_NUMBER": "X1"}
		require.NoError(t, store.Upsert(ctx, replacement))

		got, err := store.FindBySessionID(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionOCRAndFaceSuccess, got.Status)
		assert.Equal(t, models.ExtractedFields{"DOCUMENT_NUMBER": "X1"}, got.Fields)
	})

	t.Run("InsertIfAbsent does not overwrite", func(t *testing.T) {
		store := NewInMemory()
		require.NoError(t, store.Upsert(ctx, record("abc", models.ExtractionOCRAndFaceSuccess)))

		written, err := store.InsertIfAbsent(ctx, &models.ExtractionRecord{SessionID: "abc", Status: models.ExtractionFailed})
		require.NoError(t, err)
		assert.False(t, written)

		got, err := store.FindBySessionID(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.ExtractionOCRAndFaceSuccess, got.Status)
	})

	t.Run("stored record is isolated from caller mutation", func(t *testing.T) {
		store := NewInMemory()
		rec := record("abc", models.ExtractionOCRAndFaceSuccess)
		require.NoError(t, store.Upsert(ctx, rec))
		rec.Fields["FIRST_NAME"] = "MUTATED"
		rec.FaceBoundingBox.Width = 0.9

		got, err := store.FindBySessionID(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "JANE", got.Fields["FIRST_NAME"])
		assert.InDelta(t, 0.2, got.FaceBoundingBox.Width, 1e-9)
	})
}

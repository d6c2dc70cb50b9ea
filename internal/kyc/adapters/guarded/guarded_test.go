package guarded

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports/mocks"
	"kycflow/pkg/platform/circuit"
	"kycflow/pkg/platform/sentinel"
	dErrors "kycflow/pkg/domain-errors"
)

func TestFaceComparerOpensAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := mocks.NewMockFaceComparer(ctrl)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := circuit.New("face_compare",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	cmp := NewFaceComparer(next, breaker, nil)
	ref := models.ObjectRef{Bucket: "b", Key: "k"}

	next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(0.0, errors.New("throttled")).Times(2)
	for i := 0; i < 2; i++ {
		_, err := cmp.CompareFaces(context.Background(), ref, ref)
		require.Error(t, err)
	}

	_, err := cmp.CompareFaces(context.Background(), ref, ref)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamFailure))
	assert.True(t, breaker.IsOpen())

	now = now.Add(2 * time.Minute)
	next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(99.5, nil)
	score, err := cmp.CompareFaces(context.Background(), ref, ref)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, score, 1e-9)
}

func TestFaceComparerIgnoresCallerAndObjectErrors(t *testing.T) {
	ref := models.ObjectRef{Bucket: "b", Key: "k"}
	newComparer := func(t *testing.T) (*mocks.MockFaceComparer, *FaceComparer, *circuit.Breaker) {
		ctrl := gomock.NewController(t)
		next := mocks.NewMockFaceComparer(ctrl)
		breaker := circuit.New("face_compare", circuit.WithFailureThreshold(1))
		return next, NewFaceComparer(next, breaker, nil), breaker
	}

	t.Run("cancelled caller", func(t *testing.T) {
		next, cmp, breaker := newComparer(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(0.0, errors.New("request canceled"))

		_, err := cmp.CompareFaces(ctx, ref, ref)
		require.Error(t, err)
		assert.False(t, breaker.IsOpen())
	})

	t.Run("deadline error from the client", func(t *testing.T) {
		next, cmp, breaker := newComparer(t)
		next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(0.0, fmt.Errorf("compare: %w", context.DeadlineExceeded))

		_, err := cmp.CompareFaces(context.Background(), ref, ref)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, breaker.IsOpen())
	})

	t.Run("missing object", func(t *testing.T) {
		next, cmp, breaker := newComparer(t)
		next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(0.0, fmt.Errorf("compare: %w", sentinel.ErrObjectMissing))

		_, err := cmp.CompareFaces(context.Background(), ref, ref)
		require.ErrorIs(t, err, sentinel.ErrObjectMissing)
		assert.False(t, breaker.IsOpen())
	})

	t.Run("upstream failure still counts", func(t *testing.T) {
		next, cmp, breaker := newComparer(t)
		next.EXPECT().CompareFaces(gomock.Any(), ref, ref).Return(0.0, errors.New("throttled"))

		_, err := cmp.CompareFaces(context.Background(), ref, ref)
		require.Error(t, err)
		assert.True(t, breaker.IsOpen())
	})
}

func TestTextExtractorAndDetectorPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	text := mocks.NewMockTextExtractor(ctrl)
	faces := mocks.NewMockFaceDetector(ctrl)
	ref := models.ObjectRef{Bucket: "b", Key: "k"}

	text.EXPECT().ExtractText(gomock.Any(), ref).Return(map[string]string{"A": "1"}, nil)
	faces.EXPECT().DetectFaces(gomock.Any(), ref).Return(nil, nil)

	fields, err := NewTextExtractor(text, circuit.New("ocr"), nil).ExtractText(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1"}, fields)

	detected, err := NewFaceDetector(faces, circuit.New("face_detect"), nil).DetectFaces(context.Background(), ref)
	require.NoError(t, err)
	assert.Empty(t, detected)
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "kycflow/pkg/domain-errors"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetryPolicyDo(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		calls, retries := 0, 0
		err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return dErrors.New(dErrors.CodeUpstreamFailure, "throttled")
			}
			return nil
		}, func(error, time.Duration) { retries++ })

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("stops after the attempt budget", func(t *testing.T) {
		calls := 0
		err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
			calls++
			return dErrors.New(dErrors.CodeStoreUnavailable, "down")
		}, nil)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeStoreUnavailable))
		assert.Equal(t, 4, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
			calls++
			return dErrors.New(dErrors.CodeFaceDetectionAmbiguous, "two faces")
		}, nil)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeFaceDetectionAmbiguous))
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryPolicy{MaxAttempts: 100, InitialBackoff: 50 * time.Millisecond}.Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return errors.New("timeout")
		}, nil)

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

package events

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "kycflow/pkg/domain-errors"
)

// RetryPolicy bounds redelivery of one trigger.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RedriveAfter is how long a change trigger whose retries ran out waits
	// before it is emitted again. Zero drops it instead.
	RedriveAfter time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		RedriveAfter:   time.Minute,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx ends. onRetry is called before each new attempt.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, onRetry func(err error, wait time.Duration)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && !dErrors.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, onRetry)
}

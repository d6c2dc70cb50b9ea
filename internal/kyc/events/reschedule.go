package events

import (
	"context"
	"io"
	"log/slog"
	"time"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
)

// rescheduleSlack lands the re-trigger just after the deadline.
const rescheduleSlack = time.Second

// DeadlineStore persists pending re-evaluations.
type DeadlineStore interface {
	Put(ctx context.Context, id models.SessionID, at time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.Deadline, error)
	Remove(ctx context.Context, id models.SessionID, at time.Time) error
	Delete(ctx context.Context, id models.SessionID) error
}

// Rescheduler re-emits the change trigger for sessions whose evaluation
// asked to be looked at again later. Deadlines live in a DeadlineStore and
// are swept on an interval, so any replica picks up what another one
// scheduled before it stopped.
type Rescheduler struct {
	deadlines DeadlineStore
	changes   ports.ChangePublisher
	logger    *slog.Logger
	interval  time.Duration
	batch     int
	now       func() time.Time
}

type ReschedulerOption func(*Rescheduler)

// WithSweepInterval sets how often Run looks for due deadlines.
func WithSweepInterval(d time.Duration) ReschedulerOption {
	return func(r *Rescheduler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithSweepBatch caps how many deadlines one sweep fires.
func WithSweepBatch(n int) ReschedulerOption {
	return func(r *Rescheduler) {
		if n > 0 {
			r.batch = n
		}
	}
}

func withClock(now func() time.Time) ReschedulerOption {
	return func(r *Rescheduler) {
		r.now = now
	}
}

func NewRescheduler(deadlines DeadlineStore, changes ports.ChangePublisher, logger *slog.Logger, opts ...ReschedulerOption) *Rescheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Rescheduler{
		deadlines: deadlines,
		changes:   changes,
		logger:    logger,
		interval:  5 * time.Second,
		batch:     100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule records one re-trigger for id at or after at. A later call for
// the same session replaces the earlier deadline.
func (r *Rescheduler) Schedule(ctx context.Context, id models.SessionID, at time.Time) error {
	return r.deadlines.Put(ctx, id, at.Add(rescheduleSlack))
}

// Cancel drops any pending re-trigger for id.
func (r *Rescheduler) Cancel(ctx context.Context, id models.SessionID) error {
	return r.deadlines.Delete(ctx, id)
}

// Sweep emits the change trigger for every due deadline and returns how
// many fired. A deadline is removed only after its trigger is out, so a
// crash in between re-emits it on the next sweep.
func (r *Rescheduler) Sweep(ctx context.Context) (int, error) {
	due, err := r.deadlines.Due(ctx, r.now(), r.batch)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, d := range due {
		if err := r.changes.ExtractionChanged(ctx, d.SessionID); err != nil {
			r.logger.ErrorContext(ctx, "failed to re-emit change trigger",
				"session_id", d.SessionID,
				"due_at", d.DueAt,
				"error", err,
			)
			continue
		}
		if err := r.deadlines.Remove(ctx, d.SessionID, d.DueAt); err != nil {
			r.logger.WarnContext(ctx, "failed to remove fired deadline",
				"session_id", d.SessionID,
				"error", err,
			)
		}
		fired++
	}
	return fired, nil
}

// Run sweeps until ctx ends.
func (r *Rescheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if n, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "deadline sweep failed", "error", err)
		} else if n > 0 {
			r.logger.DebugContext(ctx, "deadline sweep fired re-triggers", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

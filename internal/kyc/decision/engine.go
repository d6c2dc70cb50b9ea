// Package decision fuses extraction and liveness evidence into the single
// terminal result of a session.
package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

type SessionReader interface {
	FindByID(ctx context.Context, id models.SessionID) (*models.Session, error)
}

type ExtractionReader interface {
	FindBySessionID(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error)
}

type ResultStore interface {
	CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error)
	FindBySessionID(ctx context.Context, id models.SessionID) (*models.Result, error)
	ClaimNotification(ctx context.Context, id models.SessionID, now, until time.Time) (bool, error)
	ConfirmNotification(ctx context.Context, id models.SessionID, at time.Time) error
	ReleaseNotification(ctx context.Context, id models.SessionID) error
}

// settleTimeout bounds the store writes that follow a publish attempt.
// They run detached from the trigger context so a timed-out publish still
// gives its lease back.
const settleTimeout = 5 * time.Second

// Config tunes the fusion rule.
type Config struct {
	SimilarityThreshold float64
	LivenessGracePeriod time.Duration
	Timeout             time.Duration
	LivenessBucket      string
	// NotifyLease is how long one worker holds the right to publish. It
	// must outlast a publish attempt.
	NotifyLease time.Duration
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 99.0,
		LivenessGracePeriod: 15 * time.Minute,
		Timeout:             20 * time.Second,
		NotifyLease:         time.Minute,
	}
}

// Outcome classifies one evaluation.
type Outcome string

const (
	OutcomeDecided   Outcome = "decided"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeDuplicate Outcome = "duplicate"
)

// Evaluation reports what one trigger did.
type Evaluation struct {
	Outcome     Outcome
	Result      *models.Result // stored result, nil when deferred
	DeferReason DeferReason
	RetryAt     time.Time // when the session should be evaluated again; zero for never
}

// Engine is the decision engine.
type Engine struct {
	sessions    SessionReader
	extractions ExtractionReader
	results     ResultStore
	comparer    ports.FaceComparer
	notifier    ports.Notifier
	cfg         Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// New constructs an Engine.
func New(sessions SessionReader, extractions ExtractionReader, results ResultStore, comparer ports.FaceComparer, notifier ports.Notifier, opts ...Option) *Engine {
	e := &Engine{
		sessions:    sessions,
		extractions: extractions,
		results:     results,
		comparer:    comparer,
		notifier:    notifier,
		cfg:         DefaultConfig(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:      otel.Tracer("kycflow/decision"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate handles one change trigger for id. Returned errors are
// retryable; a session that already has a notified result is a silent
// no-op.
func (e *Engine) Evaluate(ctx context.Context, id models.SessionID) (*Evaluation, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveEvaluateLatency(time.Since(start)) }()

	ctx, span := e.tracer.Start(ctx, "decision.evaluate", trace.WithAttributes(
		attribute.String("kyc.session_id", string(id)),
	))
	defer span.End()

	eval, err := e.evaluate(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		e.logger.WarnContext(ctx, "decision evaluation failed",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.decision_outcome", string(eval.Outcome)))
	return eval, nil
}

func (e *Engine) evaluate(ctx context.Context, id models.SessionID) (*Evaluation, error) {
	existing, err := e.findResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return e.settleExisting(ctx, existing)
	}

	session, err := e.findSession(ctx, id)
	if err != nil {
		return nil, err
	}
	record, err := e.findExtraction(ctx, id)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	plan, reason := PlanEvaluation(session, record, now, e.cfg.LivenessGracePeriod)

	var similarity *float64
	switch plan {
	case PlanDefer:
		e.metrics.IncDeferred(string(reason))
		e.logger.DebugContext(ctx, "decision deferred",
			"session_id", id,
			"reason", reason,
		)
		eval := &Evaluation{Outcome: OutcomeDeferred, DeferReason: reason}
		if reason == DeferAwaitingLiveness {
			eval.RetryAt = LivenessDeadline(session, e.cfg.LivenessGracePeriod)
		}
		return eval, nil
	case PlanCompare:
		score, err := e.compare(ctx, record, session)
		if err != nil {
			return nil, err
		}
		similarity = &score
	case PlanRejectIncomplete:
	}

	status, why := Decide(similarity, e.cfg.SimilarityThreshold)
	stored, created, err := e.results.CreateIfAbsent(ctx, &models.Result{
		SessionID:   id,
		FinalStatus: status,
		Reason:      why,
		Similarity:  similarity,
		DecidedAt:   now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store result")
	}
	if !created {
		return e.settleExisting(ctx, stored)
	}

	e.metrics.IncDecision(string(stored.FinalStatus))
	e.logger.InfoContext(ctx, "decision made",
		"session_id", id,
		"final_status", stored.FinalStatus,
		"compared", similarity != nil,
	)
	retryAt, err := e.notify(ctx, stored)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Outcome: OutcomeDecided, Result: stored, RetryAt: retryAt}, nil
}

// settleExisting publishes a result whose notification never went out and
// is otherwise a no-op. While another worker holds the publish lease the
// trigger is deferred until the lease lapses.
func (e *Engine) settleExisting(ctx context.Context, existing *models.Result) (*Evaluation, error) {
	if !existing.Notified() {
		retryAt, err := e.notify(ctx, existing)
		if err != nil {
			return nil, err
		}
		if !retryAt.IsZero() {
			e.metrics.IncDeferred(string(DeferNotifyInFlight))
			return &Evaluation{Outcome: OutcomeDeferred, Result: existing, DeferReason: DeferNotifyInFlight, RetryAt: retryAt}, nil
		}
	}
	e.metrics.IncDuplicateSuppressed()
	return &Evaluation{Outcome: OutcomeDuplicate, Result: existing}, nil
}

// notify publishes the result under a lease. A non-zero time means another
// worker holds the lease and the caller should look again then. A crash
// between publish and confirm lets the lease lapse and the result is
// published again, so delivery is at least once.
func (e *Engine) notify(ctx context.Context, result *models.Result) (time.Time, error) {
	now := requestcontext.Now(ctx).UTC()
	until := now.Add(e.cfg.NotifyLease)
	won, err := e.results.ClaimNotification(ctx, result.SessionID, now, until)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to claim notification")
	}
	if !won {
		return until, nil
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err := e.notifier.Publish(ctx, result.Notification()); err != nil {
		e.metrics.IncNotification("failed")
		if rerr := e.results.ReleaseNotification(settleCtx, result.SessionID); rerr != nil {
			e.logger.ErrorContext(ctx, "failed to release notification claim",
				"session_id", result.SessionID,
				"lease_until", until,
				"error", rerr,
			)
		}
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "failed to publish notification")
	}
	e.metrics.IncNotification("published")

	if err := e.results.ConfirmNotification(settleCtx, result.SessionID, requestcontext.Now(ctx).UTC()); err != nil {
		e.logger.ErrorContext(ctx, "failed to confirm notification",
			"session_id", result.SessionID,
			"error", err,
		)
	}
	return time.Time{}, nil
}

func (e *Engine) compare(ctx context.Context, record *models.ExtractionRecord, session *models.Session) (float64, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	selfie := models.ObjectRef{Bucket: e.cfg.LivenessBucket, Key: session.LivenessSelfieRef}

	start := time.Now()
	score, err := e.comparer.CompareFaces(ctx, record.Document, selfie)
	e.metrics.ObserveCollaborator("face_compare", err, time.Since(start))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "face comparison failed")
	}
	if score < 0 || score > 100 {
		return 0, dErrors.New(dErrors.CodeUpstreamFailure, "face comparison returned a score outside [0, 100]")
	}
	return score, nil
}

func (e *Engine) findResult(ctx context.Context, id models.SessionID) (*models.Result, error) {
	result, err := e.results.FindBySessionID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load result")
	}
	return result, nil
}

func (e *Engine) findSession(ctx context.Context, id models.SessionID) (*models.Session, error) {
	session, err := e.sessions.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load session")
	}
	return session, nil
}

func (e *Engine) findExtraction(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error) {
	record, err := e.extractions.FindBySessionID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load extraction record")
	}
	return record, nil
}

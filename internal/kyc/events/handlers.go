package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"kycflow/internal/kyc/decision"
	"kycflow/internal/kyc/models"
	"kycflow/internal/platform/kafka/consumer"
	"kycflow/internal/platform/metrics"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

// Trigger outcomes recorded per topic.
const (
	outcomeOK        = "ok"
	outcomeRetried   = "retried"
	outcomeDropped   = "dropped"
	outcomeExhausted = "exhausted"
	outcomeDeferred  = "deferred"
	// retries ran out and a durable re-trigger was scheduled
	outcomeRescheduled = "rescheduled"
)

// scheduleTimeout bounds writes to the deadline store made after the
// trigger context may already be done.
const scheduleTimeout = 5 * time.Second

type DocumentProcessor interface {
	Process(ctx context.Context, event models.ObjectCreatedEvent) error
	MarkFailed(ctx context.Context, event models.ObjectCreatedEvent, cause error) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, id models.SessionID) (*decision.Evaluation, error)
}

type SelfieConfirmer interface {
	ConfirmSelfie(ctx context.Context, id models.SessionID) (*models.Session, error)
}

// DocumentHandler consumes storage triggers and drives the extraction
// worker. Exhausted retries of a retryable failure mark the extraction
// FAILED. Permanent failures are logged and dropped.
type DocumentHandler struct {
	worker  DocumentProcessor
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDocumentHandler(worker DocumentProcessor, policy RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *DocumentHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DocumentHandler{worker: worker, policy: policy, logger: logger, metrics: m}
}

func (h *DocumentHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = messageContext(ctx, msg)

	var event models.ObjectCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to unmarshal storage trigger",
			"offset", msg.Offset,
			"error", err,
		)
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		return nil
	}

	err := h.policy.Do(ctx, func(ctx context.Context) error {
		return h.worker.Process(ctx, event)
	}, func(err error, wait time.Duration) {
		h.metrics.IncTrigger(msg.Topic, outcomeRetried)
		h.logger.InfoContext(ctx, "retrying storage trigger",
			"object_key", event.ObjectKey,
			"wait", wait,
			"error", err,
		)
	})
	switch {
	case err == nil:
		h.metrics.IncTrigger(msg.Topic, outcomeOK)
		return nil
	case !dErrors.Retryable(err):
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		h.logger.WarnContext(ctx, "storage trigger dropped",
			"object_key", event.ObjectKey,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil
	case ctx.Err() != nil:
		return err
	}

	h.metrics.IncTrigger(msg.Topic, outcomeExhausted)
	if ferr := h.worker.MarkFailed(ctx, event, err); ferr != nil {
		h.logger.ErrorContext(ctx, "failed to mark extraction failed",
			"object_key", event.ObjectKey,
			"error", ferr,
		)
		return ferr
	}
	return err
}

// DecisionHandler consumes change triggers and drives the decision engine.
// When the engine asks to be looked at again, or retries of a retryable
// failure run out, the session is handed to the Rescheduler so the trigger
// is not lost with the message.
type DecisionHandler struct {
	engine     Evaluator
	policy     RetryPolicy
	reschedule *Rescheduler
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewDecisionHandler builds the handler. reschedule may be nil, in which
// case sessions waiting for liveness rely on the selfie trigger alone and
// exhausted triggers are dropped.
func NewDecisionHandler(engine Evaluator, policy RetryPolicy, reschedule *Rescheduler, logger *slog.Logger, m *metrics.Metrics) *DecisionHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DecisionHandler{engine: engine, policy: policy, reschedule: reschedule, logger: logger, metrics: m}
}

func (h *DecisionHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = messageContext(ctx, msg)

	var event models.ExtractionChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to unmarshal change trigger",
			"offset", msg.Offset,
			"error", err,
		)
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		return nil
	}
	id, err := models.ParseSessionID(string(event.SessionID))
	if err != nil {
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		return nil
	}

	var eval *decision.Evaluation
	err = h.policy.Do(ctx, func(ctx context.Context) error {
		var evalErr error
		eval, evalErr = h.engine.Evaluate(ctx, id)
		return evalErr
	}, func(err error, wait time.Duration) {
		h.metrics.IncTrigger(msg.Topic, outcomeRetried)
		h.logger.InfoContext(ctx, "retrying change trigger",
			"session_id", id,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return h.exhausted(ctx, msg.Topic, id, err)
	}

	if !eval.RetryAt.IsZero() && h.reschedule != nil {
		if serr := h.reschedule.Schedule(ctx, id, eval.RetryAt); serr != nil {
			h.logger.ErrorContext(ctx, "failed to schedule re-evaluation",
				"session_id", id,
				"retry_at", eval.RetryAt,
				"error", serr,
			)
			return dErrors.Wrap(serr, dErrors.CodeStoreUnavailable, "failed to schedule re-evaluation")
		}
	} else if h.reschedule != nil {
		if cerr := h.reschedule.Cancel(ctx, id); cerr != nil {
			h.logger.WarnContext(ctx, "failed to cancel re-evaluation",
				"session_id", id,
				"error", cerr,
			)
		}
	}

	if eval.Outcome == decision.OutcomeDeferred {
		h.metrics.IncTrigger(msg.Topic, outcomeDeferred)
		return nil
	}
	h.metrics.IncTrigger(msg.Topic, outcomeOK)
	return nil
}

// exhausted hands a trigger whose retryable failure outlasted the retry
// budget to the Rescheduler. Non-retryable failures are dropped.
func (h *DecisionHandler) exhausted(ctx context.Context, topic string, id models.SessionID, err error) error {
	if !dErrors.Retryable(err) {
		h.metrics.IncTrigger(topic, outcomeDropped)
		h.logger.ErrorContext(ctx, "change trigger dropped",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return err
	}
	if h.reschedule == nil || h.policy.RedriveAfter <= 0 {
		h.metrics.IncTrigger(topic, outcomeExhausted)
		h.logger.ErrorContext(ctx, "change trigger failed",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return err
	}

	schedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scheduleTimeout)
	defer cancel()
	at := requestcontext.Now(ctx).Add(h.policy.RedriveAfter)
	if serr := h.reschedule.Schedule(schedCtx, id, at); serr != nil {
		h.metrics.IncTrigger(topic, outcomeExhausted)
		h.logger.ErrorContext(ctx, "change trigger failed and could not be rescheduled",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
			"schedule_error", serr,
		)
		return err
	}
	h.metrics.IncTrigger(topic, outcomeRescheduled)
	h.logger.WarnContext(ctx, "change trigger retries exhausted, rescheduled",
		"session_id", id,
		"retry_at", at,
		"error_code", dErrors.CodeOf(err),
		"error", err,
	)
	return nil
}

// SelfieHandler consumes storage triggers for live selfies and confirms the
// upload, which in turn triggers the decision engine.
type SelfieHandler struct {
	liveness SelfieConfirmer
	policy   RetryPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewSelfieHandler(liveness SelfieConfirmer, policy RetryPolicy, logger *slog.Logger, m *metrics.Metrics) *SelfieHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SelfieHandler{liveness: liveness, policy: policy, logger: logger, metrics: m}
}

func (h *SelfieHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = messageContext(ctx, msg)

	var event models.ObjectCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to unmarshal selfie trigger",
			"offset", msg.Offset,
			"error", err,
		)
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		return nil
	}
	id, err := models.SessionIDFromObjectKey(event.ObjectKey)
	if err != nil || models.DecodeObjectKey(event.ObjectKey) != models.SelfieKey(id) {
		h.logger.WarnContext(ctx, "object is not a live selfie, skipping",
			"object_key", event.ObjectKey,
		)
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		return nil
	}

	err = h.policy.Do(ctx, func(ctx context.Context) error {
		_, confirmErr := h.liveness.ConfirmSelfie(ctx, id)
		return confirmErr
	}, func(err error, wait time.Duration) {
		h.metrics.IncTrigger(msg.Topic, outcomeRetried)
		h.logger.InfoContext(ctx, "retrying selfie trigger",
			"session_id", id,
			"wait", wait,
			"error", err,
		)
	})
	switch {
	case err == nil:
		h.metrics.IncTrigger(msg.Topic, outcomeOK)
		return nil
	case !dErrors.Retryable(err):
		h.metrics.IncTrigger(msg.Topic, outcomeDropped)
		h.logger.WarnContext(ctx, "selfie trigger dropped",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil
	default:
		h.metrics.IncTrigger(msg.Topic, outcomeExhausted)
		h.logger.ErrorContext(ctx, "selfie trigger failed",
			"session_id", id,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return err
	}
}

// messageContext carries the producer's request ID, or the message key, as
// the correlation ID.
func messageContext(ctx context.Context, msg *consumer.Message) context.Context {
	if id := msg.Headers["request_id"]; id != "" {
		ctx = requestcontext.WithRequestID(ctx, id)
	} else if len(msg.Key) > 0 {
		ctx = requestcontext.WithRequestID(ctx, string(msg.Key))
	}
	return ctx
}

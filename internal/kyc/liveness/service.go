// Package liveness records the start of the live selfie capture and the
// moment the selfie lands in storage.
package liveness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

// Gestures are the prompts the capture client walks the user through.
var Gestures = []string{"Look Straight", "Blink Slowly", "Smile"}

type SessionStore interface {
	FindByID(ctx context.Context, id models.SessionID) (*models.Session, error)
	RecordLiveness(ctx context.Context, id models.SessionID, livenessSessionID, selfieRef string) (*models.Session, error)
	AdvanceStatus(ctx context.Context, id models.SessionID, status models.SessionStatus) (*models.Session, error)
}

// StartLivenessRequest is the body of the liveness start call.
type StartLivenessRequest struct {
	SessionID string `json:"kycSessionId"`
}

func (r *StartLivenessRequest) Validate() error {
	_, err := models.ParseSessionID(r.SessionID)
	return err
}

// StartLivenessResult tells the client where to put the live selfie.
type StartLivenessResult struct {
	SessionID         models.SessionID
	LivenessSessionID string
	SelfieKey         string
	UploadURL         string // empty without an object store
	Gestures          []string
}

// Service starts liveness captures.
type Service struct {
	sessions   SessionStore
	changes    ports.ChangePublisher
	objects    ports.ObjectStore
	bucket     string
	presignTTL time.Duration
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithChangePublisher re-triggers the decision engine once the selfie is
// stored, so a deferred evaluation runs again.
func WithChangePublisher(changes ports.ChangePublisher) Option {
	return func(s *Service) {
		s.changes = changes
	}
}

// WithObjectStore enables presigned selfie upload URLs in bucket.
func WithObjectStore(objects ports.ObjectStore, bucket string, ttl time.Duration) Option {
	return func(s *Service) {
		s.objects = objects
		s.bucket = bucket
		s.presignTTL = ttl
	}
}

// New constructs a Service.
func New(sessions SessionStore, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartLiveness advances the session to LIVENESS_STARTED and records where
// the live selfie will be stored. Repeated calls return the first token.
// The decision engine is not triggered here: the selfie does not exist
// until the client uploads it.
func (s *Service) StartLiveness(ctx context.Context, id models.SessionID) (*StartLivenessResult, error) {
	session, err := s.sessions.RecordLiveness(ctx, id, models.NewLivenessToken(), models.SelfieKey(id))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to record liveness")
	}

	result := &StartLivenessResult{
		SessionID:         session.ID,
		LivenessSessionID: session.LivenessSessionID,
		SelfieKey:         session.LivenessSelfieRef,
		Gestures:          Gestures,
	}
	if s.objects != nil {
		url, err := s.objects.PresignUpload(ctx, models.ObjectRef{Bucket: s.bucket, Key: session.LivenessSelfieRef}, s.presignTTL)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to presign selfie upload",
				"session_id", id,
				"error", err,
			)
		} else {
			result.UploadURL = url
		}
	}

	s.logger.InfoContext(ctx, "liveness started",
		"session_id", id,
		"liveness_session_id", session.LivenessSessionID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// ConfirmSelfie marks the live selfie as stored and triggers the decision
// engine. Repeated calls re-emit the trigger and are otherwise no-ops.
func (s *Service) ConfirmSelfie(ctx context.Context, id models.SessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load session")
	}
	if !session.HasLiveness() {
		return nil, dErrors.New(dErrors.CodeConflict, "liveness check has not been started")
	}

	session, err = s.sessions.AdvanceStatus(ctx, id, models.SessionSelfieUploaded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to record selfie upload")
	}

	if s.changes != nil {
		if err := s.changes.ExtractionChanged(ctx, id); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "failed to emit change trigger")
		}
	}

	s.logger.InfoContext(ctx, "selfie upload confirmed",
		"session_id", id,
		"selfie_key", session.LivenessSelfieRef,
		"request_id", requestcontext.RequestID(ctx),
	)
	return session, nil
}

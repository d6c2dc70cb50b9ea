// Package ingestion opens verification sessions.
package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"time"

	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

const maxCreateAttempts = 3

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id models.SessionID) (*models.Session, error)
}

// UploadNotifier emits the storage trigger for an uploaded document.
type UploadNotifier interface {
	DocumentUploaded(ctx context.Context, event models.ObjectCreatedEvent) error
}

// CreateSessionRequest carries the client-supplied document attributes.
type CreateSessionRequest struct {
	FileName     string `json:"fileName"`
	DocumentType string `json:"documentType"`
	CountryCode  string `json:"countryCode"`
}

// Validate checks presence only; NewSession enforces the full invariants.
func (r *CreateSessionRequest) Validate() error {
	if r.FileName == "" || r.DocumentType == "" || r.CountryCode == "" {
		return dErrors.New(dErrors.CodeValidation, "fileName, documentType and countryCode are required")
	}
	return nil
}

// CreateSessionResult is the new session plus where to upload the document.
type CreateSessionResult struct {
	Session   *models.Session
	UploadKey string
	UploadURL string // empty without an object store
}

// Service creates sessions.
type Service struct {
	sessions   SessionStore
	objects    ports.ObjectStore
	bucket     string
	presignTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	uploads    UploadNotifier
	newID      func() models.SessionID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithObjectStore enables presigned upload URLs for documents in bucket.
func WithObjectStore(objects ports.ObjectStore, bucket string, ttl time.Duration) Option {
	return func(s *Service) {
		s.objects = objects
		s.bucket = bucket
		s.presignTTL = ttl
	}
}

// WithUploadNotifier enables ConfirmUpload for deployments whose object
// store does not emit storage triggers itself.
func WithUploadNotifier(uploads UploadNotifier) Option {
	return func(s *Service) {
		s.uploads = uploads
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() models.SessionID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(sessions SessionStore, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:    models.NewSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession validates the request, persists a new UPLOAD_STARTED
// session and returns its upload location. Nothing is persisted on
// validation failure.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	now := requestcontext.Now(ctx)

	var session *models.Session
	for attempt := 1; ; attempt++ {
		candidate, err := models.NewSession(s.newID(), req.FileName, req.DocumentType, req.CountryCode, now)
		if err != nil {
			return nil, err
		}
		err = s.sessions.Create(ctx, candidate)
		if err == nil {
			session = candidate
			break
		}
		if errors.Is(err, sentinel.ErrAlreadyExists) && attempt < maxCreateAttempts {
			s.logger.WarnContext(ctx, "session id collision, regenerating",
				"session_id", candidate.ID,
				"attempt", attempt,
			)
			continue
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to create session")
	}

	result := &CreateSessionResult{Session: session, UploadKey: session.DocumentKey()}
	if s.objects != nil {
		url, err := s.objects.PresignUpload(ctx, models.ObjectRef{Bucket: s.bucket, Key: result.UploadKey}, s.presignTTL)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to presign document upload",
				"session_id", session.ID,
				"error", err,
			)
		} else {
			result.UploadURL = url
		}
	}

	s.metrics.IncSessionCreated()
	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"document_type", session.DocumentType,
		"country_code", session.CountryCode,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// ConfirmUpload emits the storage trigger for the session's document key.
func (s *Service) ConfirmUpload(ctx context.Context, id models.SessionID) (*models.ObjectCreatedEvent, error) {
	if s.uploads == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "upload confirmation is handled by the object store")
	}
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load session")
	}

	// Keys travel in storage-notification encoding.
	event := models.ObjectCreatedEvent{
		Bucket:    s.bucket,
		ObjectKey: string(session.ID) + "/" + url.QueryEscape(session.FileName),
	}
	if err := s.uploads.DocumentUploaded(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "failed to emit storage trigger")
	}
	s.logger.InfoContext(ctx, "document upload confirmed",
		"session_id", session.ID,
		"object_key", event.ObjectKey,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &event, nil
}

package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/kyc/ingestion"
	"kycflow/internal/kyc/liveness"
	"kycflow/internal/kyc/models"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

// IngestionService opens sessions.
type IngestionService interface {
	CreateSession(ctx context.Context, req ingestion.CreateSessionRequest) (*ingestion.CreateSessionResult, error)
	ConfirmUpload(ctx context.Context, id models.SessionID) (*models.ObjectCreatedEvent, error)
}

// LivenessService starts liveness captures and confirms selfie uploads.
type LivenessService interface {
	StartLiveness(ctx context.Context, id models.SessionID) (*liveness.StartLivenessResult, error)
	ConfirmSelfie(ctx context.Context, id models.SessionID) (*models.Session, error)
}

// StatusService answers read-only queries.
type StatusService interface {
	GetStatus(ctx context.Context, id models.SessionID) (models.VerificationStatus, error)
	GetExtractedData(ctx context.Context, id models.SessionID) (models.ExtractedFields, error)
	GetResult(ctx context.Context, id models.SessionID) (*models.Result, error)
}

// Handler serves the KYC session API.
type Handler struct {
	logger    *slog.Logger
	ingestion IngestionService
	liveness  LivenessService
	status    StatusService
}

// New creates a new KYC Handler.
func New(ingestion IngestionService, liveness LivenessService, status StatusService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		logger:    logger,
		ingestion: ingestion,
		liveness:  liveness,
		status:    status,
	}
}

// Register registers the KYC routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/kyc", func(r chi.Router) {
		r.Post("/sessions", h.handleCreateSession)
		r.Post("/liveness", h.handleStartLiveness)
		r.Post("/{sessionId}/document-uploaded", h.handleConfirmUpload)
		r.Post("/{sessionId}/selfie-uploaded", h.handleConfirmSelfie)
		r.Get("/{sessionId}/status", h.handleGetStatus)
		r.Get("/{sessionId}/extracted-data", h.handleGetExtractedData)
		r.Get("/{sessionId}/result", h.handleGetResult)
	})
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	UploadKey string `json:"uploadKey"`
	UploadURL string `json:"uploadUrl,omitempty"`
}

type startLivenessResponse struct {
	SessionID         string   `json:"kycSessionId"`
	LivenessSessionID string   `json:"livenessSessionId"`
	SelfieKey         string   `json:"selfieKey"`
	UploadURL         string   `json:"uploadUrl,omitempty"`
	Gestures          []string `json:"gestures"`
}

type confirmUploadResponse struct {
	Bucket    string `json:"bucketRef"`
	ObjectKey string `json:"objectKey"`
}

type confirmSelfieResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type statusResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type resultResponse struct {
	SessionID   string   `json:"sessionId"`
	FinalStatus string   `json:"finalStatus"`
	Reason      string   `json:"reason"`
	Similarity  *float64 `json:"similarity,omitempty"`
	DecidedAt   string   `json:"decidedAt"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ingestion.CreateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.ingestion.CreateSession(ctx, *req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create session", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: string(res.Session.ID),
		UploadKey: res.UploadKey,
		UploadURL: res.UploadURL,
	})
}

func (h *Handler) handleStartLiveness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[liveness.StartLivenessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	// Validate already accepted the ID.
	id, _ := models.ParseSessionID(req.SessionID)

	res, err := h.liveness.StartLiveness(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to start liveness", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, startLivenessResponse{
		SessionID:         string(res.SessionID),
		LivenessSessionID: res.LivenessSessionID,
		SelfieKey:         res.SelfieKey,
		UploadURL:         res.UploadURL,
		Gestures:          res.Gestures,
	})
}

func (h *Handler) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	event, err := h.ingestion.ConfirmUpload(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to confirm upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, confirmUploadResponse{
		Bucket:    event.Bucket,
		ObjectKey: event.ObjectKey,
	})
}

func (h *Handler) handleConfirmSelfie(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.liveness.ConfirmSelfie(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to confirm selfie upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, confirmSelfieResponse{
		SessionID: string(session.ID),
		Status:    string(session.Status),
	})
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	status, err := h.status.GetStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to load status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{SessionID: string(id), Status: string(status)})
}

func (h *Handler) handleGetExtractedData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	fields, err := h.status.GetExtractedData(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to load extracted data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fields)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	result, err := h.status.GetResult(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "failed to load result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resultResponse{
		SessionID:   string(result.SessionID),
		FinalStatus: string(result.FinalStatus),
		Reason:      result.Reason,
		Similarity:  result.Similarity,
		DecidedAt:   result.DecidedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (models.SessionID, bool) {
	id, err := models.ParseSessionID(chi.URLParam(r, "sessionId"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

// writeServiceError logs at warn for client errors and at error otherwise.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNotFound, dErrors.CodeConflict:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

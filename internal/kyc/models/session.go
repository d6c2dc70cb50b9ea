package models

import (
	"strings"
	"time"

	dErrors "kycflow/pkg/domain-errors"
)

// SessionStatus is the lifecycle position of a session. It only advances.
type SessionStatus string

const (
	SessionUploadStarted   SessionStatus = "UPLOAD_STARTED"
	SessionLivenessStarted SessionStatus = "LIVENESS_STARTED"
	SessionSelfieUploaded  SessionStatus = "SELFIE_UPLOADED"
)

// Rank orders statuses so stores can refuse regressions.
func (s SessionStatus) Rank() int {
	switch s {
	case SessionUploadStarted:
		return 1
	case SessionLivenessStarted:
		return 2
	case SessionSelfieUploaded:
		return 3
	default:
		return 0
	}
}

const maxAttributeLength = 255

// Session is one verification attempt.
type Session struct {
	ID                SessionID
	FileName          string
	DocumentType      string
	CountryCode       string
	Status            SessionStatus
	LivenessSessionID string // empty until liveness starts
	LivenessSelfieRef string // storage key of the live selfie; empty until liveness starts
	CreatedAt         time.Time
}

// NewSession validates the submitted attributes and builds a session in
// UPLOAD_STARTED.
func NewSession(id SessionID, fileName, documentType, countryCode string, createdAt time.Time) (*Session, error) {
	fileName = strings.TrimSpace(fileName)
	documentType = strings.TrimSpace(documentType)
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))

	switch {
	case fileName == "":
		return nil, dErrors.New(dErrors.CodeValidation, "fileName is required")
	case documentType == "":
		return nil, dErrors.New(dErrors.CodeValidation, "documentType is required")
	case countryCode == "":
		return nil, dErrors.New(dErrors.CodeValidation, "countryCode is required")
	}
	if len(fileName) > maxAttributeLength || len(documentType) > maxAttributeLength || len(countryCode) > maxAttributeLength {
		return nil, dErrors.New(dErrors.CodeValidation, "session attributes must be at most 255 characters")
	}
	if strings.ContainsAny(fileName, "/\\") {
		return nil, dErrors.New(dErrors.CodeValidation, "fileName must not contain path separators")
	}

	return &Session{
		ID:           id,
		FileName:     fileName,
		DocumentType: documentType,
		CountryCode:  countryCode,
		Status:       SessionUploadStarted,
		CreatedAt:    createdAt.UTC().Truncate(time.Millisecond),
	}, nil
}

// HasLiveness reports whether a live selfie location has been recorded.
func (s *Session) HasLiveness() bool {
	return s.LivenessSelfieRef != ""
}

// HasSelfie reports whether the live selfie has been written to storage and
// can be compared.
func (s *Session) HasSelfie() bool {
	return s.HasLiveness() && s.Status.Rank() >= SessionSelfieUploaded.Rank()
}

// DocumentKey is the storage key the document upload is expected under.
func (s *Session) DocumentKey() string {
	return string(s.ID) + "/" + s.FileName
}

// SelfieKey is the storage key the live selfie is written to.
func SelfieKey(id SessionID) string {
	return string(id) + "/selfie.png"
}

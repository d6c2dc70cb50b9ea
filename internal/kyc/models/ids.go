package models

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	dErrors "kycflow/pkg/domain-errors"
)

// SessionID is the opaque correlation key shared by every record of one
// verification attempt.
type SessionID string

const (
	sessionIDPrefix    = "kyc-session-"
	maxSessionIDLength = 128
)

// NewSessionID generates a fresh, globally unique session ID.
func NewSessionID() SessionID {
	return SessionID(sessionIDPrefix + uuid.NewString())
}

func (id SessionID) String() string { return string(id) }

// ParseSessionID validates an ID received at a trust boundary. IDs are
// opaque: any non-empty value without path separators is accepted so that
// sessions created by other producers still resolve.
func ParseSessionID(raw string) (SessionID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", dErrors.New(dErrors.CodeValidation, "sessionId is required")
	}
	if len(raw) > maxSessionIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "sessionId is too long")
	}
	if strings.ContainsAny(raw, "/\\") {
		return "", dErrors.New(dErrors.CodeValidation, "sessionId must not contain path separators")
	}
	return SessionID(raw), nil
}

// SessionIDFromObjectKey derives the session from a storage object key whose
// leading path segment is the session ID. Keys arrive URL-encoded from
// storage notifications, with '+' standing for a space.
func SessionIDFromObjectKey(objectKey string) (SessionID, error) {
	decoded, err := url.PathUnescape(strings.ReplaceAll(objectKey, "+", " "))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "object key is not valid URL encoding")
	}
	prefix, _, found := strings.Cut(decoded, "/")
	if !found {
		return "", dErrors.New(dErrors.CodeValidation, "object key has no session prefix")
	}
	return ParseSessionID(prefix)
}

// DecodeObjectKey returns the storage key with URL encoding removed.
func DecodeObjectKey(objectKey string) string {
	decoded, err := url.PathUnescape(strings.ReplaceAll(objectKey, "+", " "))
	if err != nil {
		return objectKey
	}
	return decoded
}

// NewLivenessToken generates the tracking token of one liveness capture.
func NewLivenessToken() string {
	return uuid.NewString()
}

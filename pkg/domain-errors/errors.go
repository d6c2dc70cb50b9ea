// Package domainerrors defines the coded error type shared by services and
// transports. Services return *Error values; transports translate the code
// into a status without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeBadRequest             Code = "bad_request"
	CodeValidation             Code = "validation_error"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeUpstreamFailure        Code = "upstream_service_failure"
	CodeFaceDetectionAmbiguous Code = "face_detection_ambiguous"
	CodeStoreUnavailable       Code = "store_unavailable"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal_error"
)

// Error is a domain error with a stable code and a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a domain error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Retryable reports whether the trigger mechanism should redeliver the event
// that produced err. Malformed input and ambiguous face detection need a new
// upload, not a retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeBadRequest, CodeValidation, CodeNotFound, CodeConflict, CodeFaceDetectionAmbiguous:
		return false
	default:
		return true
	}
}

// HTTPStatus maps a code onto its transport status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeFaceDetectionAmbiguous:
		return http.StatusUnprocessableEntity
	case CodeUpstreamFailure:
		return http.StatusBadGateway
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

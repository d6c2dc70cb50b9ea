package session

import "kycflow/pkg/platform/sentinel"

var (
	// ErrNotFound is returned when no session exists for the ID.
	ErrNotFound = sentinel.ErrNotFound
	// ErrAlreadyExists is returned when creating a session whose ID is taken.
	ErrAlreadyExists = sentinel.ErrAlreadyExists
)

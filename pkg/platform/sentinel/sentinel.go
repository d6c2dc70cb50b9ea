package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors:
//   - ErrNotFound: no record exists for the key
//   - ErrAlreadyExists: a write-once record is already present for the key
//   - ErrUnavailable: the backing store could not be reached or did not commit
//   - ErrObjectMissing: a collaborator could not read the referenced object
//
// Validation failures belong in pkg/domain-errors, not here.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
	ErrObjectMissing = errors.New("object missing")
)

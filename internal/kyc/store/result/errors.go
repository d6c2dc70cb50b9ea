package result

import "kycflow/pkg/platform/sentinel"

// ErrNotFound is returned when a session has no result yet.
var ErrNotFound = sentinel.ErrNotFound

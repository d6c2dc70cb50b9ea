package extraction

import "kycflow/pkg/platform/sentinel"

// ErrNotFound is returned when a session has no extraction record yet.
var ErrNotFound = sentinel.ErrNotFound

package models

import "time"

// Deadline is a pending re-evaluation of one session.
type Deadline struct {
	SessionID SessionID
	DueAt     time.Time
}

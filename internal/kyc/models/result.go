package models

import (
	"fmt"
	"time"
)

// FinalStatus is the terminal decision for a session.
type FinalStatus string

const (
	StatusVerified FinalStatus = "VERIFIED"
	StatusRejected FinalStatus = "REJECTED"
)

// VerificationStatus is what clients observe: PENDING until a Result exists.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = VerificationStatus(StatusVerified)
	VerificationRejected VerificationStatus = VerificationStatus(StatusRejected)
)

// Result is the write-once terminal decision of a session.
type Result struct {
	SessionID   SessionID
	FinalStatus FinalStatus
	Reason      string
	Similarity  *float64 // nil when no face comparison ran
	DecidedAt   time.Time
	NotifiedAt  *time.Time
}

// Notified reports whether the result notification was published.
func (r *Result) Notified() bool {
	return r.NotifiedAt != nil
}

// Notification returns the subscriber message for this result.
func (r *Result) Notification() Notification {
	return Notification{
		SessionID:   r.SessionID,
		FinalStatus: r.FinalStatus,
		Reason:      r.Reason,
	}
}

// Notification is published once per Result.
type Notification struct {
	SessionID   SessionID   `json:"sessionId"`
	FinalStatus FinalStatus `json:"finalStatus"`
	Reason      string      `json:"reason"`
}

func (n Notification) Subject() string {
	return fmt.Sprintf("KYC Result: %s", n.FinalStatus)
}

func (n Notification) Body() string {
	return fmt.Sprintf("session %s completed with status %s: %s", n.SessionID, n.FinalStatus, n.Reason)
}

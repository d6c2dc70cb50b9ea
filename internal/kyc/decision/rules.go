package decision

import (
	"fmt"
	"time"

	"kycflow/internal/kyc/models"
)

const (
	ReasonVerified   = "All checks passed, face match confirmed."
	ReasonIncomplete = "Incomplete data or checks failed."
)

// DeferReason explains why an evaluation produced no result.
type DeferReason string

const (
	DeferNone             DeferReason = ""
	DeferNoSession        DeferReason = "no_session"
	DeferNoExtraction     DeferReason = "no_extraction"
	DeferAwaitingLiveness DeferReason = "awaiting_liveness"
	DeferNotifyInFlight   DeferReason = "notification_in_flight"
)

// Plan is what the engine should do with the evidence at hand.
type Plan int

const (
	PlanDefer Plan = iota
	PlanCompare
	PlanRejectIncomplete
)

// PlanEvaluation picks the next step from the stored evidence.
// This is pure domain logic - no I/O.
//
// Rule priority:
//  1. Missing session or extraction record defers.
//  2. A FAILED or face-less extraction cannot pass.
//  3. Face present and the selfie confirmed in storage: compare.
//  4. Selfie not yet stored, whether or not liveness started: defer until
//     the liveness grace period after session creation has passed, then
//     reject.
func PlanEvaluation(session *models.Session, record *models.ExtractionRecord, now time.Time, grace time.Duration) (Plan, DeferReason) {
	switch {
	case session == nil:
		return PlanDefer, DeferNoSession
	case record == nil:
		return PlanDefer, DeferNoExtraction
	case record.Status == models.ExtractionFailed || !record.HasFace():
		return PlanRejectIncomplete, DeferNone
	case session.HasSelfie():
		return PlanCompare, DeferNone
	case now.Before(LivenessDeadline(session, grace)):
		return PlanDefer, DeferAwaitingLiveness
	default:
		return PlanRejectIncomplete, DeferNone
	}
}

// LivenessDeadline is when a session without a selfie stops waiting.
func LivenessDeadline(session *models.Session, grace time.Duration) time.Time {
	return session.CreatedAt.Add(grace)
}

// Decide applies the similarity threshold. A nil similarity means no
// comparison was possible and never passes.
func Decide(similarity *float64, threshold float64) (models.FinalStatus, string) {
	if similarity == nil {
		return models.StatusRejected, ReasonIncomplete
	}
	if *similarity >= threshold {
		return models.StatusVerified, ReasonVerified
	}
	return models.StatusRejected, fmt.Sprintf("Face match failed with a similarity of %.2f%%.", *similarity)
}

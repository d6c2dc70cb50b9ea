package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kycflow/internal/kyc/models"
)

func ptr(v float64) *float64 { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		similarity *float64
		wantStatus models.FinalStatus
		wantReason string
	}{
		{name: "just under threshold", similarity: ptr(98.99), wantStatus: models.StatusRejected, wantReason: "Face match failed with a similarity of 98.99%."},
		{name: "at threshold", similarity: ptr(99.0), wantStatus: models.StatusVerified, wantReason: ReasonVerified},
		{name: "perfect match", similarity: ptr(100.0), wantStatus: models.StatusVerified, wantReason: ReasonVerified},
		{name: "no match", similarity: ptr(0), wantStatus: models.StatusRejected, wantReason: "Face match failed with a similarity of 0.00%."},
		{name: "no comparison", similarity: nil, wantStatus: models.StatusRejected, wantReason: ReasonIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := Decide(tt.similarity, 99.0)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestPlanEvaluation(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	grace := 15 * time.Minute
	box := &models.BoundingBox{Width: 0.2, Height: 0.2}

	withLiveness := &models.Session{ID: "abc", CreatedAt: created, Status: models.SessionSelfieUploaded, LivenessSelfieRef: "abc/selfie.png"}
	selfiePending := &models.Session{ID: "abc", CreatedAt: created, Status: models.SessionLivenessStarted, LivenessSelfieRef: "abc/selfie.png"}
	withoutLiveness := &models.Session{ID: "abc", CreatedAt: created}
	faceRecord := &models.ExtractionRecord{SessionID: "abc", Status: models.ExtractionOCRAndFaceSuccess, FaceBoundingBox: box}
	ocrOnly := &models.ExtractionRecord{SessionID: "abc", Status: models.ExtractionOCRSuccessful}
	failed := &models.ExtractionRecord{SessionID: "abc", Status: models.ExtractionFailed}

	tests := []struct {
		name       string
		session    *models.Session
		record     *models.ExtractionRecord
		now        time.Time
		wantPlan   Plan
		wantReason DeferReason
	}{
		{name: "no session", session: nil, record: faceRecord, now: created, wantPlan: PlanDefer, wantReason: DeferNoSession},
		{name: "no extraction", session: withLiveness, record: nil, now: created, wantPlan: PlanDefer, wantReason: DeferNoExtraction},
		{name: "failed extraction", session: withLiveness, record: failed, now: created, wantPlan: PlanRejectIncomplete},
		{name: "no face stored", session: withLiveness, record: ocrOnly, now: created, wantPlan: PlanRejectIncomplete},
		{name: "ready to compare", session: withLiveness, record: faceRecord, now: created, wantPlan: PlanCompare},
		{name: "awaiting liveness", session: withoutLiveness, record: faceRecord, now: created.Add(grace - time.Second), wantPlan: PlanDefer, wantReason: DeferAwaitingLiveness},
		{name: "liveness started but selfie not stored", session: selfiePending, record: faceRecord, now: created.Add(time.Minute), wantPlan: PlanDefer, wantReason: DeferAwaitingLiveness},
		{name: "selfie never stored before the deadline", session: selfiePending, record: faceRecord, now: created.Add(grace), wantPlan: PlanRejectIncomplete},
		{name: "liveness grace expired", session: withoutLiveness, record: faceRecord, now: created.Add(grace), wantPlan: PlanRejectIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, reason := PlanEvaluation(tt.session, tt.record, tt.now, grace)
			assert.Equal(t, tt.wantPlan, plan)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports/mocks"
	extractionstore "kycflow/internal/kyc/store/extraction"
	resultstore "kycflow/internal/kyc/store/result"
	sessionstore "kycflow/internal/kyc/store/session"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

var (
	createdAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	docRef    = models.ObjectRef{Bucket: "docs", Key: "abc/passport.png"}
	selfieRef = models.ObjectRef{Bucket: "selfies", Key: "abc/selfie.png"}
)

type engineFixture struct {
	sessions    *sessionstore.InMemoryStore
	extractions *extractionstore.InMemoryStore
	results     ResultStore
	comparer    *mocks.MockFaceComparer
	notifier    *mocks.MockNotifier
	engine      *Engine
}

type sessionStage int

const (
	stageOpened sessionStage = iota
	stageLivenessStarted
	stageSelfieUploaded
)

func newEngineFixture(t *testing.T, results ResultStore, opts ...Option) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	if results == nil {
		results = resultstore.NewInMemory()
	}
	f := &engineFixture{
		sessions:    sessionstore.NewInMemory(),
		extractions: extractionstore.NewInMemory(),
		results:     results,
		comparer:    mocks.NewMockFaceComparer(ctrl),
		notifier:    mocks.NewMockNotifier(ctrl),
	}
	cfg := DefaultConfig()
	cfg.LivenessBucket = "selfies"
	f.engine = New(f.sessions, f.extractions, f.results, f.comparer, f.notifier, append([]Option{WithConfig(cfg)}, opts...)...)
	return f
}

func (f *engineFixture) seedSession(t *testing.T, stage sessionStage) {
	t.Helper()
	ctx := context.Background()
	s, err := models.NewSession("abc", "passport.png", "PASSPORT", "US", createdAt)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(ctx, s))
	if stage >= stageLivenessStarted {
		_, err = f.sessions.RecordLiveness(ctx, "abc", "live-1", "abc/selfie.png")
		require.NoError(t, err)
	}
	if stage >= stageSelfieUploaded {
		_, err = f.sessions.AdvanceStatus(ctx, "abc", models.SessionSelfieUploaded)
		require.NoError(t, err)
	}
}

func (f *engineFixture) seedExtraction(t *testing.T, status models.ExtractionStatus) {
	t.Helper()
	rec := &models.ExtractionRecord{
		SessionID: "abc",
		Fields:    models.ExtractedFields{"FIRSTNAME": "JANE"},
		Status:    status,
		Document:  docRef,
		UpdatedAt: createdAt,
	}
	if status == models.ExtractionOCRAndFaceSuccess {
		rec.FaceBoundingBox = &models.BoundingBox{Width: 0.2, Height: 0.3, Left: 0.1, Top: 0.1}
	}
	require.NoError(t, f.extractions.Upsert(context.Background(), rec))
}

func at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), createdAt.Add(d))
}

func TestEvaluate_DecidesAndNotifiesOnce(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

	f.comparer.EXPECT().CompareFaces(gomock.Any(), docRef, selfieRef).Return(99.5, nil)
	f.notifier.EXPECT().Publish(gomock.Any(), models.Notification{
		SessionID:   "abc",
		FinalStatus: models.StatusVerified,
		Reason:      ReasonVerified,
	}).Return(nil)

	eval, err := f.engine.Evaluate(at(time.Minute), "abc")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDecided, eval.Outcome)
	assert.Equal(t, models.StatusVerified, eval.Result.FinalStatus)
	require.NotNil(t, eval.Result.Similarity)
	assert.InDelta(t, 99.5, *eval.Result.Similarity, 1e-9)

	stored, err := f.results.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, stored.Notified())

	again, err := f.engine.Evaluate(at(2*time.Minute), "abc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
}

func TestEvaluate_ConcurrentDuplicateTriggers(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

	f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(99.5, nil).MinTimes(1)
	f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	const triggers = 20
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, triggers)
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eval, err := f.engine.Evaluate(at(time.Minute), "abc")
			if assert.NoError(t, err) {
				outcomes <- eval.Outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	decided := 0
	for o := range outcomes {
		if o == OutcomeDecided {
			decided++
		}
	}
	assert.Equal(t, 1, decided)
}

// lateResults hides the stored result from the pre-check so the engine
// reaches the conditional write, as a concurrent decision would.
type lateResults struct {
	*resultstore.InMemoryStore
}

func (l lateResults) FindBySessionID(context.Context, models.SessionID) (*models.Result, error) {
	return nil, resultstore.ErrNotFound
}

func TestEvaluate_ResultIsWriteOnce(t *testing.T) {
	store := resultstore.NewInMemory()
	first := 42.0
	_, created, err := store.CreateIfAbsent(context.Background(), &models.Result{
		SessionID:   "abc",
		FinalStatus: models.StatusRejected,
		Reason:      "Face match failed with a similarity of 42.00%.",
		Similarity:  &first,
		DecidedAt:   createdAt,
	})
	require.NoError(t, err)
	require.True(t, created)
	won, err := store.ClaimNotification(context.Background(), "abc", createdAt, createdAt.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, store.ConfirmNotification(context.Background(), "abc", createdAt))

	f := newEngineFixture(t, lateResults{store})
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)
	f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(99.9, nil)

	eval, err := f.engine.Evaluate(at(time.Minute), "abc")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, eval.Outcome)
	stored, err := store.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.FinalStatus)
	assert.InDelta(t, 42.0, *stored.Similarity, 1e-9)
}

func TestEvaluate_Defers(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newEngineFixture(t, nil)

		eval, err := f.engine.Evaluate(at(0), "abc")
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeferred, eval.Outcome)
		assert.Equal(t, DeferNoSession, eval.DeferReason)
	})

	t.Run("no extraction", func(t *testing.T) {
		f := newEngineFixture(t, nil)
		f.seedSession(t, stageSelfieUploaded)

		eval, err := f.engine.Evaluate(at(0), "abc")
		require.NoError(t, err)
		assert.Equal(t, DeferNoExtraction, eval.DeferReason)
		_, err = f.results.FindBySessionID(context.Background(), "abc")
		assert.ErrorIs(t, err, resultstore.ErrNotFound)
	})

	t.Run("awaiting liveness inside the grace period", func(t *testing.T) {
		f := newEngineFixture(t, nil)
		f.seedSession(t, stageOpened)
		f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

		eval, err := f.engine.Evaluate(at(time.Minute), "abc")
		require.NoError(t, err)
		assert.Equal(t, DeferAwaitingLiveness, eval.DeferReason)
		assert.Equal(t, createdAt.Add(15*time.Minute), eval.RetryAt)
	})

	t.Run("liveness started but the selfie is not stored yet", func(t *testing.T) {
		f := newEngineFixture(t, nil)
		f.seedSession(t, stageLivenessStarted)
		f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

		eval, err := f.engine.Evaluate(at(time.Minute), "abc")
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeferred, eval.Outcome)
		assert.Equal(t, DeferAwaitingLiveness, eval.DeferReason)
		assert.Equal(t, createdAt.Add(15*time.Minute), eval.RetryAt)
	})
}

func TestEvaluate_RejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		stage  sessionStage
		status models.ExtractionStatus
		now    time.Duration
	}{
		{name: "failed extraction", stage: stageSelfieUploaded, status: models.ExtractionFailed},
		{name: "no face on document", stage: stageSelfieUploaded, status: models.ExtractionOCRSuccessful},
		{name: "liveness never started", stage: stageOpened, status: models.ExtractionOCRAndFaceSuccess, now: 16 * time.Minute},
		{name: "selfie never stored", stage: stageLivenessStarted, status: models.ExtractionOCRAndFaceSuccess, now: 16 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, nil)
			f.seedSession(t, tt.stage)
			f.seedExtraction(t, tt.status)
			f.notifier.EXPECT().Publish(gomock.Any(), models.Notification{
				SessionID:   "abc",
				FinalStatus: models.StatusRejected,
				Reason:      ReasonIncomplete,
			}).Return(nil)

			eval, err := f.engine.Evaluate(at(tt.now), "abc")
			require.NoError(t, err)
			assert.Equal(t, OutcomeDecided, eval.Outcome)
			assert.Nil(t, eval.Result.Similarity)
		})
	}
}

func TestEvaluate_ComparisonFailures(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		err   error
	}{
		{name: "collaborator error", err: errors.New("throttled")},
		{name: "score above range", score: 100.5},
		{name: "negative score", score: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, nil)
			f.seedSession(t, stageSelfieUploaded)
			f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)
			f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.score, tt.err)

			_, err := f.engine.Evaluate(at(time.Minute), "abc")
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamFailure))
			assert.True(t, dErrors.Retryable(err))

			_, err = f.results.FindBySessionID(context.Background(), "abc")
			assert.ErrorIs(t, err, resultstore.ErrNotFound)
		})
	}
}

func TestEvaluate_PublishFailureIsRetriedWithoutRedeciding(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

	f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(99.5, nil).Times(1)
	gomock.InOrder(
		f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("topic unavailable")),
		f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
	)

	_, err := f.engine.Evaluate(at(time.Minute), "abc")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamFailure))

	stored, err := f.results.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, stored.Notified())

	eval, err := f.engine.Evaluate(at(2*time.Minute), "abc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, eval.Outcome)

	stored, err = f.results.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, stored.Notified())
}

// ctxResults fails lease writes whose context is already done, as a
// networked store would.
type ctxResults struct {
	*resultstore.InMemoryStore
}

func (c ctxResults) ConfirmNotification(ctx context.Context, id models.SessionID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.InMemoryStore.ConfirmNotification(ctx, id, at)
}

func (c ctxResults) ReleaseNotification(ctx context.Context, id models.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.InMemoryStore.ReleaseNotification(ctx, id)
}

func TestEvaluate_TimedOutPublishReleasesLease(t *testing.T) {
	f := newEngineFixture(t, ctxResults{resultstore.NewInMemory()})
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)

	f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(99.5, nil).Times(1)
	gomock.InOrder(
		f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ models.Notification) error {
				<-ctx.Done()
				return ctx.Err()
			}),
		f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
	)

	ctx, cancel := context.WithTimeout(at(time.Minute), 50*time.Millisecond)
	defer cancel()
	_, err := f.engine.Evaluate(ctx, "abc")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamFailure))

	// Well inside the lease: only a released lease lets this publish.
	eval, err := f.engine.Evaluate(at(time.Minute+time.Second), "abc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, eval.Outcome)

	stored, err := f.results.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, stored.Notified())
}

func TestEvaluate_LiveLeaseDefersUntilItLapses(t *testing.T) {
	store := resultstore.NewInMemory()
	_, _, err := store.CreateIfAbsent(context.Background(), &models.Result{
		SessionID:   "abc",
		FinalStatus: models.StatusVerified,
		Reason:      ReasonVerified,
		DecidedAt:   createdAt,
	})
	require.NoError(t, err)
	won, err := store.ClaimNotification(context.Background(), "abc", createdAt.Add(time.Minute), createdAt.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, won)

	f := newEngineFixture(t, store)

	eval, err := f.engine.Evaluate(at(90*time.Second), "abc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, eval.Outcome)
	assert.Equal(t, DeferNotifyInFlight, eval.DeferReason)
	assert.Equal(t, createdAt.Add(90*time.Second+time.Minute), eval.RetryAt)

	f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	eval, err = f.engine.Evaluate(at(3*time.Minute), "abc")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, eval.Outcome)

	stored, err := store.FindBySessionID(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, stored.Notified())
}

func TestEvaluate_DuplicatesAreNotCountedAsDeferrals(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := newEngineFixture(t, nil, WithMetrics(m))
	f.seedSession(t, stageSelfieUploaded)
	f.seedExtraction(t, models.ExtractionOCRAndFaceSuccess)
	f.comparer.EXPECT().CompareFaces(gomock.Any(), gomock.Any(), gomock.Any()).Return(99.5, nil)
	f.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.engine.Evaluate(at(time.Minute), "abc")
	require.NoError(t, err)
	eval, err := f.engine.Evaluate(at(2*time.Minute), "abc")
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, eval.Outcome)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.DuplicatesSuppressed))
	assert.Equal(t, 0, promtest.CollectAndCount(m.DecisionDeferred))
}

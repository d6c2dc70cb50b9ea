package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/kyc/adapters/stub"
	"kycflow/internal/kyc/decision"
	"kycflow/internal/kyc/extraction"
	"kycflow/internal/kyc/ingestion"
	"kycflow/internal/kyc/liveness"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/status"
	deadlinestore "kycflow/internal/kyc/store/deadline"
	extractionstore "kycflow/internal/kyc/store/extraction"
	resultstore "kycflow/internal/kyc/store/result"
	sessionstore "kycflow/internal/kyc/store/session"
	"kycflow/pkg/testutil"
	dErrors "kycflow/pkg/domain-errors"
)

type pipeline struct {
	dispatcher *Dispatcher
	resched    *Rescheduler
	deadlines  *deadlinestore.InMemoryStore
	comparer   *flakyComparer
	notifier   *stub.LogNotifier
	ingestion  *ingestion.Service
	liveness   *liveness.Service
	status     *status.Service

	mu     sync.Mutex
	offset time.Duration
}

// flakyComparer fails the first failures comparisons and counts calls.
type flakyComparer struct {
	faces *stub.Faces

	mu       sync.Mutex
	failures int
	calls    int
}

func (c *flakyComparer) CompareFaces(ctx context.Context, source, target models.ObjectRef) (float64, error) {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return 0, dErrors.New(dErrors.CodeUpstreamFailure, "comparison throttled")
	}
	return c.faces.CompareFaces(ctx, source, target)
}

func (c *flakyComparer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newPipeline(t *testing.T, similarity float64, compareFailures int) *pipeline {
	t.Helper()
	sessions := sessionstore.NewInMemory()
	extractions := extractionstore.NewInMemory()
	results := resultstore.NewInMemory()
	deadlines := deadlinestore.NewInMemory()
	notifier := stub.NewLogNotifier(nil)
	faces := stub.NewFaces(similarity)
	comparer := &flakyComparer{faces: faces, failures: compareFailures}

	p := &pipeline{deadlines: deadlines, comparer: comparer, notifier: notifier}

	router := NewRouter(nil)
	dispatcher := NewDispatcher(router, documentTopic, extractionTopic, nil)
	resched := NewRescheduler(deadlines, dispatcher, nil, withClock(p.now))

	policy := fastPolicy(3)
	policy.RedriveAfter = time.Minute
	worker := extraction.New(stub.NewTextExtractor(), faces, extractions, dispatcher)
	engine := decision.New(sessions, extractions, results, comparer, notifier)
	live := liveness.New(sessions, liveness.WithChangePublisher(dispatcher))
	router.Register(documentTopic, NewDocumentHandler(worker, policy, nil, nil))
	router.Register(extractionTopic, NewDecisionHandler(engine, policy, resched, nil, nil))
	router.Register(selfieTopic, NewSelfieHandler(live, policy, nil, nil))

	p.dispatcher = dispatcher
	p.resched = resched
	p.ingestion = ingestion.New(sessions,
		ingestion.WithIDGenerator(func() models.SessionID { return "abc" }),
		ingestion.WithUploadNotifier(dispatcher),
	)
	p.liveness = live
	p.status = status.New(extractions, results)
	t.Cleanup(dispatcher.Close)
	return p
}

func (p *pipeline) now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Add(p.offset)
}

func (p *pipeline) advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset += d
}

// sweep runs the rescheduler once and waits for the triggers it emitted.
func (p *pipeline) sweep(t *testing.T) int {
	t.Helper()
	fired, err := p.resched.Sweep(context.Background())
	require.NoError(t, err)
	p.dispatcher.Wait()
	return fired
}

func (p *pipeline) pending(t *testing.T) int {
	t.Helper()
	due, err := p.deadlines.Due(context.Background(), time.Now().Add(24*time.Hour), 0)
	require.NoError(t, err)
	return len(due)
}

func (p *pipeline) createSession(t *testing.T) {
	t.Helper()
	_, err := p.ingestion.CreateSession(context.Background(), ingestion.CreateSessionRequest{
		FileName: "passport.png", DocumentType: "PASSPORT", CountryCode: "US",
	})
	require.NoError(t, err)
}

func (p *pipeline) uploadDocument(t *testing.T) {
	t.Helper()
	_, err := p.ingestion.ConfirmUpload(context.Background(), "abc")
	require.NoError(t, err)
	p.dispatcher.Wait()
}

func (p *pipeline) startLiveness(t *testing.T) {
	t.Helper()
	_, err := p.liveness.StartLiveness(context.Background(), "abc")
	require.NoError(t, err)
	p.dispatcher.Wait()
}

func (p *pipeline) uploadSelfie(t *testing.T) {
	t.Helper()
	_, err := p.liveness.ConfirmSelfie(context.Background(), "abc")
	require.NoError(t, err)
	p.dispatcher.Wait()
}

func (p *pipeline) statusOf(t *testing.T) models.VerificationStatus {
	t.Helper()
	got, err := p.status.GetStatus(context.Background(), "abc")
	require.NoError(t, err)
	return got
}

func TestPipeline(t *testing.T) {
	testutil.Given(t, "a session whose document is extracted before liveness", func(t *testing.T) {
		p := newPipeline(t, 99.5, 0)
		p.createSession(t)
		p.uploadDocument(t)

		testutil.Then(t, "the decision waits for liveness", func(t *testing.T) {
			assert.Equal(t, models.VerificationPending, p.statusOf(t))
			assert.Equal(t, 1, p.pending(t))

			fields, err := p.status.GetExtractedData(context.Background(), "abc")
			require.NoError(t, err)
			assert.Equal(t, "JANE", fields["FIRSTNAME"])
		})

		testutil.When(t, "liveness starts but the selfie is not stored yet", func(t *testing.T) {
			p.startLiveness(t)

			testutil.Then(t, "no comparison is attempted", func(t *testing.T) {
				assert.Equal(t, models.VerificationPending, p.statusOf(t))
				assert.Zero(t, p.comparer.callCount())
				assert.Empty(t, p.notifier.Sent())
			})
		})

		testutil.When(t, "the selfie upload is reported", func(t *testing.T) {
			p.uploadSelfie(t)

			testutil.Then(t, "the session is verified and notified once", func(t *testing.T) {
				assert.Equal(t, models.VerificationVerified, p.statusOf(t))
				assert.Zero(t, p.pending(t))

				sent := p.notifier.Sent()
				require.Len(t, sent, 1)
				assert.Equal(t, "KYC Result: VERIFIED", sent[0].Subject())
				assert.Equal(t, "session abc completed with status VERIFIED: All checks passed, face match confirmed.", sent[0].Body())
			})
		})

		testutil.When(t, "the document trigger is redelivered", func(t *testing.T) {
			p.uploadDocument(t)

			testutil.Then(t, "nothing new is published", func(t *testing.T) {
				assert.Equal(t, models.VerificationVerified, p.statusOf(t))
				assert.Len(t, p.notifier.Sent(), 1)
			})
		})
	})

	testutil.Given(t, "liveness started before the document upload", func(t *testing.T) {
		p := newPipeline(t, 99.5, 0)
		p.createSession(t)
		p.startLiveness(t)
		p.uploadSelfie(t)

		testutil.Then(t, "the decision waits for extraction", func(t *testing.T) {
			assert.Equal(t, models.VerificationPending, p.statusOf(t))
			assert.Zero(t, p.pending(t))
		})

		testutil.When(t, "the document is extracted", func(t *testing.T) {
			p.uploadDocument(t)

			testutil.Then(t, "the session is verified", func(t *testing.T) {
				assert.Equal(t, models.VerificationVerified, p.statusOf(t))
				assert.Len(t, p.notifier.Sent(), 1)
			})
		})
	})

	testutil.Given(t, "a selfie reported through the storage trigger", func(t *testing.T) {
		p := newPipeline(t, 99.5, 0)
		p.createSession(t)
		p.uploadDocument(t)
		p.startLiveness(t)

		testutil.When(t, "the object store announces the selfie", func(t *testing.T) {
			msg := message(t, selfieTopic, models.ObjectCreatedEvent{Bucket: "selfies", ObjectKey: "abc/selfie.png"})
			require.NoError(t, p.dispatcher.router.Handle(context.Background(), msg))
			p.dispatcher.Wait()

			testutil.Then(t, "the session is verified", func(t *testing.T) {
				assert.Equal(t, models.VerificationVerified, p.statusOf(t))
			})
		})
	})

	testutil.Given(t, "a face comparison that fails past the retry budget", func(t *testing.T) {
		p := newPipeline(t, 99.5, 3)
		p.createSession(t)
		p.startLiveness(t)
		p.uploadDocument(t)
		p.uploadSelfie(t)

		testutil.Then(t, "the trigger is kept as a durable re-trigger", func(t *testing.T) {
			assert.Equal(t, models.VerificationPending, p.statusOf(t))
			assert.Equal(t, 1, p.pending(t))
			assert.Zero(t, p.sweep(t), "the re-trigger is not due yet")
		})

		testutil.When(t, "the redrive delay passes", func(t *testing.T) {
			p.advance(2 * time.Minute)
			fired := p.sweep(t)

			testutil.Then(t, "the session is decided and notified once", func(t *testing.T) {
				assert.Equal(t, 1, fired)
				assert.Equal(t, models.VerificationVerified, p.statusOf(t))
				assert.Len(t, p.notifier.Sent(), 1)
				assert.Zero(t, p.pending(t))
			})
		})
	})

	testutil.Given(t, "a selfie that does not match the document", func(t *testing.T) {
		p := newPipeline(t, 98.99, 0)
		p.createSession(t)
		p.startLiveness(t)
		p.uploadSelfie(t)
		p.uploadDocument(t)

		testutil.Then(t, "the session is rejected with the similarity", func(t *testing.T) {
			assert.Equal(t, models.VerificationRejected, p.statusOf(t))
			res, err := p.status.GetResult(context.Background(), "abc")
			require.NoError(t, err)
			assert.Equal(t, "Face match failed with a similarity of 98.99%.", res.Reason)
		})
	})
}

package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/internal/kyc/ports/mocks"
	extractionstore "kycflow/internal/kyc/store/extraction"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/mocks.go -package=mocks

var (
	uploaded = models.ObjectCreatedEvent{Bucket: "docs", ObjectKey: "abc/my+passport.png"}
	document = models.ObjectRef{Bucket: "docs", Key: "abc/my passport.png"}
	goodBox  = models.BoundingBox{Width: 0.2, Height: 0.3, Left: 0.1, Top: 0.1}
	ocrOut   = map[string]string{"FIRST NAME": "JANE", "LAST NAME": "DOE"}
	fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
)

type WorkerSuite struct {
	suite.Suite
	ctx     context.Context
	text    *mocks.MockTextExtractor
	faces   *mocks.MockFaceDetector
	changes *mocks.MockChangePublisher
	records *extractionstore.InMemoryStore
	metrics *metrics.Metrics
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.text = mocks.NewMockTextExtractor(ctrl)
	s.faces = mocks.NewMockFaceDetector(ctrl)
	s.changes = mocks.NewMockChangePublisher(ctrl)
	s.records = extractionstore.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *WorkerSuite) worker(opts ...Option) *Worker {
	opts = append([]Option{WithMetrics(s.metrics)}, opts...)
	return New(s.text, s.faces, s.records, s.changes, opts...)
}

func (s *WorkerSuite) stored() *models.ExtractionRecord {
	rec, err := s.records.FindBySessionID(s.ctx, "abc")
	if errors.Is(err, extractionstore.ErrNotFound) {
		return nil
	}
	s.Require().NoError(err)
	return rec
}

func (s *WorkerSuite) TestSingleFaceWritesRecordAndTriggersDecision() {
	s.text.EXPECT().ExtractText(gomock.Any(), document).Return(ocrOut, nil)
	s.faces.EXPECT().DetectFaces(gomock.Any(), document).Return([]ports.DetectedFace{{Box: goodBox, Confidence: 99.1}}, nil)
	s.changes.EXPECT().ExtractionChanged(gomock.Any(), models.SessionID("abc")).Return(nil)

	s.Require().NoError(s.worker().Process(s.ctx, uploaded))

	rec := s.stored()
	s.Require().NotNil(rec)
	s.Equal(models.ExtractionOCRAndFaceSuccess, rec.Status)
	s.Equal(models.ExtractedFields{"FIRSTNAME": "JANE", "LASTNAME": "DOE"}, rec.Fields)
	s.Equal(goodBox, *rec.FaceBoundingBox)
	s.Equal(document, rec.Document)
	s.Equal(fixedNow, rec.UpdatedAt)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ExtractionOutcome.WithLabelValues(string(models.ExtractionOCRAndFaceSuccess))))
}

func (s *WorkerSuite) TestAmbiguousFacesWriteNothing() {
	cases := map[string][]ports.DetectedFace{
		"no face":             nil,
		"two faces":           {{Box: goodBox, Confidence: 99}, {Box: goodBox, Confidence: 98}},
		"only low confidence": {{Box: goodBox, Confidence: 94.9}},
		"invalid box":         {{Box: models.BoundingBox{Width: 0, Height: 0.3}, Confidence: 99}},
	}
	for name, faces := range cases {
		s.Run(name, func() {
			s.SetupTest()
			s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil)
			s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(faces, nil)

			err := s.worker().Process(s.ctx, uploaded)

			s.True(dErrors.HasCode(err, dErrors.CodeFaceDetectionAmbiguous), "got %v", err)
			s.False(dErrors.Retryable(err))
			s.Nil(s.stored())
		})
	}
}

func (s *WorkerSuite) TestLowConfidenceFacesAreIgnored() {
	s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil)
	s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return([]ports.DetectedFace{
		{Box: goodBox, Confidence: 99.5},
		{Box: models.BoundingBox{Width: 0.05, Height: 0.05, Left: 0.8, Top: 0.8}, Confidence: 40},
	}, nil)
	s.changes.EXPECT().ExtractionChanged(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(s.worker().Process(s.ctx, uploaded))
	s.Equal(goodBox, *s.stored().FaceBoundingBox)
}

func (s *WorkerSuite) TestFaceDetectionDisabledStoresFieldsOnly() {
	cfg := DefaultConfig()
	cfg.FaceDetectionEnabled = false
	s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil)
	s.changes.EXPECT().ExtractionChanged(gomock.Any(), gomock.Any()).Return(nil)

	s.Require().NoError(s.worker(WithConfig(cfg)).Process(s.ctx, uploaded))

	rec := s.stored()
	s.Equal(models.ExtractionOCRSuccessful, rec.Status)
	s.Nil(rec.FaceBoundingBox)
}

func (s *WorkerSuite) TestUpstreamFailureIsRetryable() {
	s.Run("ocr", func() {
		s.SetupTest()
		s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(nil, errors.New("throttled"))
		s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

		err := s.worker().Process(s.ctx, uploaded)
		s.True(dErrors.HasCode(err, dErrors.CodeUpstreamFailure), "got %v", err)
		s.True(dErrors.Retryable(err))
		s.Nil(s.stored())
	})
	s.Run("face detection", func() {
		s.SetupTest()
		s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil).AnyTimes()
		s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return(nil, errors.New("throttled"))

		err := s.worker().Process(s.ctx, uploaded)
		s.True(dErrors.HasCode(err, dErrors.CodeUpstreamFailure), "got %v", err)
		s.Nil(s.stored())
	})
	s.Run("change trigger", func() {
		s.SetupTest()
		s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil)
		s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return([]ports.DetectedFace{{Box: goodBox, Confidence: 99}}, nil)
		s.changes.EXPECT().ExtractionChanged(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		err := s.worker().Process(s.ctx, uploaded)
		s.True(dErrors.HasCode(err, dErrors.CodeUpstreamFailure))
		s.NotNil(s.stored(), "record is kept so a retry re-emits the trigger")
	})
}

func (s *WorkerSuite) TestReprocessingReplacesTheRecord() {
	s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(ocrOut, nil)
	s.text.EXPECT().ExtractText(gomock.Any(), gomock.Any()).Return(map[string]string{"FIRST NAME": "JOHN"}, nil)
	s.faces.EXPECT().DetectFaces(gomock.Any(), gomock.Any()).Return([]ports.DetectedFace{{Box: goodBox, Confidence: 99}}, nil).Times(2)
	s.changes.EXPECT().ExtractionChanged(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	w := s.worker()
	s.Require().NoError(w.Process(s.ctx, uploaded))
	s.Require().NoError(w.Process(s.ctx, uploaded))

	s.Equal(models.ExtractedFields{"FIRSTNAME": "JOHN"}, s.stored().Fields)
}

func (s *WorkerSuite) TestKeyWithoutSessionPrefixIsRejected() {
	err := s.worker().Process(s.ctx, models.ObjectCreatedEvent{Bucket: "docs", ObjectKey: "passport.png"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WorkerSuite) TestMarkFailed() {
	s.Run("writes a FAILED record and triggers the decision", func() {
		s.SetupTest()
		s.changes.EXPECT().ExtractionChanged(gomock.Any(), models.SessionID("abc")).Return(nil)

		s.Require().NoError(s.worker().MarkFailed(s.ctx, uploaded, errors.New("throttled")))

		rec := s.stored()
		s.Equal(models.ExtractionFailed, rec.Status)
		s.Empty(rec.Fields)
		s.False(rec.HasFace())
	})
	s.Run("keeps an existing record", func() {
		s.SetupTest()
		existing := &models.ExtractionRecord{SessionID: "abc", Status: models.ExtractionOCRAndFaceSuccess, FaceBoundingBox: &goodBox}
		s.Require().NoError(s.records.Upsert(s.ctx, existing))

		s.Require().NoError(s.worker().MarkFailed(s.ctx, uploaded, errors.New("throttled")))

		s.Equal(models.ExtractionOCRAndFaceSuccess, s.stored().Status)
	})
}

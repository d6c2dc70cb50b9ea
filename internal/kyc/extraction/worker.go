// Package extraction turns an uploaded identity document into an
// extraction record.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/kyc/metrics"
	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/requestcontext"
	dErrors "kycflow/pkg/domain-errors"
)

const defaultTimeout = 30 * time.Second

type RecordStore interface {
	Upsert(ctx context.Context, record *models.ExtractionRecord) error
	InsertIfAbsent(ctx context.Context, record *models.ExtractionRecord) (bool, error)
}

// Config tunes document analysis.
type Config struct {
	FaceDetectionEnabled bool
	MinFaceConfidence    float64
	MaxFields            int
	Timeout              time.Duration
}

// DefaultConfig mirrors the environment defaults.
func DefaultConfig() Config {
	return Config{
		FaceDetectionEnabled: true,
		MinFaceConfidence:    95,
		MaxFields:            models.DefaultMaxFields,
		Timeout:              defaultTimeout,
	}
}

// Worker runs OCR and face detection on one document and writes the
// extraction record.
type Worker struct {
	text    ports.TextExtractor
	faces   ports.FaceDetector
	records RecordStore
	changes ports.ChangePublisher
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(w *Worker) {
		w.cfg = cfg
	}
}

// New constructs a Worker. faces may be nil when face detection is
// disabled.
func New(text ports.TextExtractor, faces ports.FaceDetector, records RecordStore, changes ports.ChangePublisher, opts ...Option) *Worker {
	w := &Worker{
		text:    text,
		faces:   faces,
		records: records,
		changes: changes,
		cfg:     DefaultConfig(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer("kycflow/extraction"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cfg.Timeout <= 0 {
		w.cfg.Timeout = defaultTimeout
	}
	return w
}

type analysis struct {
	fields map[string]string
	faces  []ports.DetectedFace
}

// Process handles one storage trigger. Upstream failures are returned with
// CodeUpstreamFailure and are safe to retry; an image without exactly one
// confident face returns CodeFaceDetectionAmbiguous and writes nothing.
func (w *Worker) Process(ctx context.Context, event models.ObjectCreatedEvent) error {
	id, err := models.SessionIDFromObjectKey(event.ObjectKey)
	if err != nil {
		return err
	}
	doc := models.ObjectRef{Bucket: event.Bucket, Key: models.DecodeObjectKey(event.ObjectKey)}

	ctx, span := w.tracer.Start(ctx, "extraction.process", trace.WithAttributes(
		attribute.String("kyc.session_id", string(id)),
		attribute.String("kyc.object_key", doc.Key),
	))
	defer span.End()

	record, err := w.analyze(ctx, id, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		w.logger.WarnContext(ctx, "document analysis failed",
			"session_id", id,
			"object_key", doc.Key,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return err
	}

	if err := w.records.Upsert(ctx, record); err != nil {
		span.RecordError(err)
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store extraction record")
	}
	w.metrics.IncExtraction(string(record.Status))
	span.SetAttributes(attribute.String("kyc.extraction_status", string(record.Status)))

	if err := w.changes.ExtractionChanged(ctx, id); err != nil {
		span.RecordError(err)
		return dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "failed to emit change trigger")
	}

	w.logger.InfoContext(ctx, "extraction record written",
		"session_id", id,
		"status", record.Status,
		"field_count", len(record.Fields),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (w *Worker) analyze(ctx context.Context, id models.SessionID, doc models.ObjectRef) (*models.ExtractionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	var out analysis

	g.Go(func() error {
		start := time.Now()
		fields, err := w.text.ExtractText(gctx, doc)
		w.metrics.ObserveCollaborator("ocr", err, time.Since(start))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "text extraction failed")
		}
		out.fields = fields
		return nil
	})

	detect := w.cfg.FaceDetectionEnabled && w.faces != nil
	if detect {
		g.Go(func() error {
			start := time.Now()
			faces, err := w.faces.DetectFaces(gctx, doc)
			w.metrics.ObserveCollaborator("face_detect", err, time.Since(start))
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "face detection failed")
			}
			out.faces = faces
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil && dErrors.CodeOf(err) != dErrors.CodeFaceDetectionAmbiguous {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "document analysis timed out")
		}
		return nil, err
	}

	record := &models.ExtractionRecord{
		SessionID: id,
		Fields:    models.CanonicalizeFields(out.fields, w.cfg.MaxFields),
		Status:    models.ExtractionOCRSuccessful,
		Document:  doc,
		UpdatedAt: requestcontext.Now(ctx).UTC(),
	}
	if !detect {
		return record, nil
	}

	box, err := w.singleFace(out.faces)
	if err != nil {
		return nil, err
	}
	record.FaceBoundingBox = &box
	record.Status = models.ExtractionOCRAndFaceSuccess
	return record, nil
}

// singleFace applies the confidence filter and requires exactly one face.
func (w *Worker) singleFace(faces []ports.DetectedFace) (models.BoundingBox, error) {
	var confident []ports.DetectedFace
	for _, f := range faces {
		if f.Confidence >= w.cfg.MinFaceConfidence {
			confident = append(confident, f)
		}
	}
	if len(confident) != 1 {
		return models.BoundingBox{}, dErrors.New(dErrors.CodeFaceDetectionAmbiguous,
			fmt.Sprintf("expected exactly one face, found %d", len(confident)))
	}
	box := confident[0].Box
	if !box.Valid() {
		return models.BoundingBox{}, dErrors.New(dErrors.CodeFaceDetectionAmbiguous, "face bounding box is outside the image")
	}
	return box, nil
}

// MarkFailed records a FAILED extraction for the session when retries are
// exhausted, unless a record already exists, and emits the change trigger
// so the session reaches a terminal result.
func (w *Worker) MarkFailed(ctx context.Context, event models.ObjectCreatedEvent, cause error) error {
	id, err := models.SessionIDFromObjectKey(event.ObjectKey)
	if err != nil {
		return err
	}
	record := &models.ExtractionRecord{
		SessionID: id,
		Fields:    models.ExtractedFields{},
		Status:    models.ExtractionFailed,
		Document:  models.ObjectRef{Bucket: event.Bucket, Key: models.DecodeObjectKey(event.ObjectKey)},
		UpdatedAt: requestcontext.Now(ctx).UTC(),
	}
	written, err := w.records.InsertIfAbsent(ctx, record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store failed extraction")
	}
	if !written {
		return nil
	}
	w.metrics.IncExtraction(string(models.ExtractionFailed))
	w.logger.ErrorContext(ctx, "extraction failed after retries",
		"session_id", id,
		"error", cause,
	)
	if err := w.changes.ExtractionChanged(ctx, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamFailure, "failed to emit change trigger")
	}
	return nil
}

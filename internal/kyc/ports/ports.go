// Package ports declares the external collaborators of the verification
// pipeline. Implementations live under internal/kyc/adapters.
package ports

import (
	"context"
	"time"

	"kycflow/internal/kyc/models"
)

// TextExtractor runs identity-document OCR and returns raw field names
// mapped to their detected text.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc models.ObjectRef) (map[string]string, error)
}

// DetectedFace is one face found by a FaceDetector.
type DetectedFace struct {
	Box        models.BoundingBox
	Confidence float64 // percent, 0-100
}

// FaceDetector locates faces in a document image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, doc models.ObjectRef) ([]DetectedFace, error)
}

// FaceComparer returns the best similarity (0-100) between the face in
// source and any face in target. No match yields 0.
type FaceComparer interface {
	CompareFaces(ctx context.Context, source, target models.ObjectRef) (float64, error)
}

// ObjectStore issues time-limited upload URLs.
type ObjectStore interface {
	PresignUpload(ctx context.Context, ref models.ObjectRef, ttl time.Duration) (string, error)
}

// Notifier publishes result notifications to subscribers.
type Notifier interface {
	Publish(ctx context.Context, n models.Notification) error
}

// ChangePublisher emits the change trigger consumed by the decision engine.
type ChangePublisher interface {
	ExtractionChanged(ctx context.Context, id models.SessionID) error
}

// Package stub provides deterministic in-process collaborators for local
// runs without AWS. They never touch the image bytes.
package stub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
)

// TextExtractor returns a fixed field set for every document.
type TextExtractor struct {
	Fields map[string]string
}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{Fields: map[string]string{
		"FIRST NAME":      "JANE",
		"LAST NAME":       "DOE",
		"DATE OF BIRTH":   "1990-01-01",
		"DOCUMENT NUMBER": "X0000000",
	}}
}

func (t *TextExtractor) ExtractText(_ context.Context, _ models.ObjectRef) (map[string]string, error) {
	out := make(map[string]string, len(t.Fields))
	for k, v := range t.Fields {
		out[k] = v
	}
	return out, nil
}

// Faces reports one centered face and a fixed similarity.
type Faces struct {
	Similarity float64
}

func NewFaces(similarity float64) *Faces {
	return &Faces{Similarity: similarity}
}

func (f *Faces) DetectFaces(_ context.Context, _ models.ObjectRef) ([]ports.DetectedFace, error) {
	return []ports.DetectedFace{{
		Box:        models.BoundingBox{Width: 0.3, Height: 0.4, Left: 0.35, Top: 0.3},
		Confidence: 99.9,
	}}, nil
}

func (f *Faces) CompareFaces(_ context.Context, _, _ models.ObjectRef) (float64, error) {
	return f.Similarity, nil
}

// ObjectStore returns local pseudo URLs.
type ObjectStore struct {
	BaseURL string
}

func (o *ObjectStore) PresignUpload(_ context.Context, ref models.ObjectRef, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s/%s?expires=%d", o.BaseURL, ref.Bucket, ref.Key, int(ttl.Seconds())), nil
}

// LogNotifier logs each notification and keeps it for inspection.
type LogNotifier struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []models.Notification
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, notification models.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, notification)
	n.mu.Unlock()
	n.logger.InfoContext(ctx, notification.Subject(),
		"session_id", notification.SessionID,
		"body", notification.Body(),
	)
	return nil
}

// Sent returns a copy of every published notification.
func (n *LogNotifier) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

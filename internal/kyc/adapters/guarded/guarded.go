// Package guarded wraps collaborators with a circuit breaker so a failing
// upstream is not hammered by every retry.
package guarded

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"kycflow/internal/kyc/models"
	"kycflow/internal/kyc/ports"
	"kycflow/pkg/platform/circuit"
	"kycflow/pkg/platform/sentinel"
	dErrors "kycflow/pkg/domain-errors"
)

func call[T any](ctx context.Context, b *circuit.Breaker, logger *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, dErrors.New(dErrors.CodeUpstreamFailure, b.Name()+" circuit open")
	}
	v, err := fn()
	if err != nil {
		if !countsAgainst(ctx, err) {
			return zero, err
		}
		if _, change := b.RecordFailure(); change.Opened {
			logger.WarnContext(ctx, "circuit opened", "collaborator", b.Name(), "error", err)
		}
		return zero, err
	}
	if _, change := b.RecordSuccess(); change.Closed {
		logger.InfoContext(ctx, "circuit closed", "collaborator", b.Name())
	}
	return v, nil
}

// countsAgainst reports whether err says something about the upstream's
// health. Caller cancellation and missing objects do not.
func countsAgainst(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, sentinel.ErrObjectMissing)
}

func discard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

type TextExtractor struct {
	next    ports.TextExtractor
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewTextExtractor(next ports.TextExtractor, breaker *circuit.Breaker, logger *slog.Logger) *TextExtractor {
	return &TextExtractor{next: next, breaker: breaker, logger: discard(logger)}
}

func (t *TextExtractor) ExtractText(ctx context.Context, doc models.ObjectRef) (map[string]string, error) {
	return call(ctx, t.breaker, t.logger, func() (map[string]string, error) {
		return t.next.ExtractText(ctx, doc)
	})
}

type FaceDetector struct {
	next    ports.FaceDetector
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewFaceDetector(next ports.FaceDetector, breaker *circuit.Breaker, logger *slog.Logger) *FaceDetector {
	return &FaceDetector{next: next, breaker: breaker, logger: discard(logger)}
}

func (f *FaceDetector) DetectFaces(ctx context.Context, doc models.ObjectRef) ([]ports.DetectedFace, error) {
	return call(ctx, f.breaker, f.logger, func() ([]ports.DetectedFace, error) {
		return f.next.DetectFaces(ctx, doc)
	})
}

type FaceComparer struct {
	next    ports.FaceComparer
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewFaceComparer(next ports.FaceComparer, breaker *circuit.Breaker, logger *slog.Logger) *FaceComparer {
	return &FaceComparer{next: next, breaker: breaker, logger: discard(logger)}
}

func (f *FaceComparer) CompareFaces(ctx context.Context, source, target models.ObjectRef) (float64, error) {
	return call(ctx, f.breaker, f.logger, func() (float64, error) {
		return f.next.CompareFaces(ctx, source, target)
	})
}

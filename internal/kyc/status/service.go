// Package status serves read-only projections of a session's progress.
package status

import (
	"context"
	"errors"

	"kycflow/internal/kyc/models"
	"kycflow/pkg/platform/sentinel"
	dErrors "kycflow/pkg/domain-errors"
)

type ExtractionReader interface {
	FindBySessionID(ctx context.Context, id models.SessionID) (*models.ExtractionRecord, error)
}

type ResultReader interface {
	FindBySessionID(ctx context.Context, id models.SessionID) (*models.Result, error)
}

// Service answers status queries. Nothing here writes.
type Service struct {
	extractions ExtractionReader
	results     ResultReader
}

func New(extractions ExtractionReader, results ResultReader) *Service {
	return &Service{extractions: extractions, results: results}
}

// GetStatus returns PENDING until a result exists. The session itself is
// not consulted, so an id that was never opened also reads as PENDING.
func (s *Service) GetStatus(ctx context.Context, id models.SessionID) (models.VerificationStatus, error) {
	result, err := s.results.FindBySessionID(ctx, id)
	switch {
	case err == nil:
		return models.VerificationStatus(result.FinalStatus), nil
	case errors.Is(err, sentinel.ErrNotFound):
		return models.VerificationPending, nil
	default:
		return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load result")
	}
}

// GetExtractedData returns the stored fields, or NotFound before
// extraction completes. A FAILED extraction has no fields and is reported
// as not found.
func (s *Service) GetExtractedData(ctx context.Context, id models.SessionID) (models.ExtractedFields, error) {
	record, err := s.extractions.FindBySessionID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "extraction not completed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load extraction record")
	}
	if record.Status == models.ExtractionFailed {
		return nil, dErrors.New(dErrors.CodeNotFound, "extraction not completed")
	}
	return record.Fields, nil
}

// GetResult returns the terminal result, or NotFound while pending.
func (s *Service) GetResult(ctx context.Context, id models.SessionID) (*models.Result, error) {
	result, err := s.results.FindBySessionID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "result not available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load result")
	}
	return result, nil
}

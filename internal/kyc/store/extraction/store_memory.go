package extraction

import (
	"context"
	"sync"

	"kycflow/internal/kyc/models"
)

// InMemoryStore keeps one extraction record per session.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[models.SessionID]models.ExtractionRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[models.SessionID]models.ExtractionRecord)}
}

// Upsert replaces any existing record for the session.
func (s *InMemoryStore) Upsert(_ context.Context, record *models.ExtractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SessionID] = copyRecord(*record)
	return nil
}

// InsertIfAbsent writes record only when the session has none. Reports
// whether it was written.
func (s *InMemoryStore) InsertIfAbsent(_ context.Context, record *models.ExtractionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.SessionID]; ok {
		return false, nil
	}
	s.records[record.SessionID] = copyRecord(*record)
	return true, nil
}

func (s *InMemoryStore) FindBySessionID(_ context.Context, id models.SessionID) (*models.ExtractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyRecord(record)
	return &out, nil
}

func copyRecord(r models.ExtractionRecord) models.ExtractionRecord {
	r.Fields = r.Fields.Clone()
	if r.FaceBoundingBox != nil {
		box := *r.FaceBoundingBox
		r.FaceBoundingBox = &box
	}
	return r
}

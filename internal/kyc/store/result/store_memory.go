package result

import (
	"context"
	"sync"
	"time"

	"kycflow/internal/kyc/models"
)

// InMemoryStore holds write-once results and their notification leases.
type InMemoryStore struct {
	mu      sync.Mutex
	results map[models.SessionID]models.Result
	claims  map[models.SessionID]time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		results: make(map[models.SessionID]models.Result),
		claims:  make(map[models.SessionID]time.Time),
	}
}

// CreateIfAbsent stores result unless one exists. It returns the stored
// result and whether this call created it.
func (s *InMemoryStore) CreateIfAbsent(_ context.Context, result *models.Result) (*models.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.results[result.SessionID]; ok {
		return copyResult(existing), false, nil
	}
	stored := *copyResult(*result)
	stored.NotifiedAt = nil
	s.results[result.SessionID] = stored
	return copyResult(stored), true, nil
}

func (s *InMemoryStore) FindBySessionID(_ context.Context, id models.SessionID) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyResult(result), nil
}

// ClaimNotification takes the publish lease until the given time. It
// fails while the result is notified or another lease is still live.
func (s *InMemoryStore) ClaimNotification(_ context.Context, id models.SessionID, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return false, ErrNotFound
	}
	if result.NotifiedAt != nil {
		return false, nil
	}
	if held, ok := s.claims[id]; ok && held.After(now) {
		return false, nil
	}
	s.claims[id] = until.UTC()
	return true, nil
}

// ConfirmNotification records the publish and drops the lease.
func (s *InMemoryStore) ConfirmNotification(_ context.Context, id models.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return ErrNotFound
	}
	if result.NotifiedAt == nil {
		at = at.UTC()
		result.NotifiedAt = &at
		s.results[id] = result
	}
	delete(s.claims, id)
	return nil
}

// ReleaseNotification drops the lease after a failed publish.
func (s *InMemoryStore) ReleaseNotification(_ context.Context, id models.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return ErrNotFound
	}
	delete(s.claims, id)
	return nil
}

func copyResult(r models.Result) *models.Result {
	if r.Similarity != nil {
		v := *r.Similarity
		r.Similarity = &v
	}
	if r.NotifiedAt != nil {
		v := *r.NotifiedAt
		r.NotifiedAt = &v
	}
	return &r
}

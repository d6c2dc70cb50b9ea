package session

import (
	"context"
	"sync"

	"kycflow/internal/kyc/models"
)

// InMemoryStore keeps sessions in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[models.SessionID]models.Session
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[models.SessionID]models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return ErrAlreadyExists
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id models.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

// RecordLiveness stores the liveness token and selfie location once. Later
// calls return the session unchanged.
func (s *InMemoryStore) RecordLiveness(_ context.Context, id models.SessionID, livenessSessionID, selfieRef string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if session.HasLiveness() {
		return &session, nil
	}
	session.LivenessSessionID = livenessSessionID
	session.LivenessSelfieRef = selfieRef
	if models.SessionLivenessStarted.Rank() > session.Status.Rank() {
		session.Status = models.SessionLivenessStarted
	}
	s.sessions[id] = session
	return &session, nil
}

// AdvanceStatus moves the session to status when that raises its rank and
// otherwise leaves it unchanged.
func (s *InMemoryStore) AdvanceStatus(_ context.Context, id models.SessionID, status models.SessionStatus) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if status.Rank() > session.Status.Rank() {
		session.Status = status
		s.sessions[id] = session
	}
	return &session, nil
}

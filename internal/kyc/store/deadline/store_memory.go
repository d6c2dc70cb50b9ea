// Package deadline persists pending decision re-evaluations so they
// survive a restart of the process that scheduled them.
package deadline

import (
	"context"
	"sort"
	"sync"
	"time"

	"kycflow/internal/kyc/models"
)

// InMemoryStore keeps one deadline per session.
type InMemoryStore struct {
	mu        sync.Mutex
	deadlines map[models.SessionID]time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{deadlines: make(map[models.SessionID]time.Time)}
}

// Put sets the deadline for id, replacing any earlier one.
func (s *InMemoryStore) Put(_ context.Context, id models.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[id] = normalize(at)
	return nil
}

// Due lists up to limit deadlines at or before now, earliest first.
func (s *InMemoryStore) Due(_ context.Context, now time.Time, limit int) ([]models.Deadline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Deadline
	for id, at := range s.deadlines {
		if !at.After(now) {
			due = append(due, models.Deadline{SessionID: id, DueAt: at})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Remove deletes the deadline for id only while it still equals at.
func (s *InMemoryStore) Remove(_ context.Context, id models.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.deadlines[id]; ok && current.Equal(normalize(at)) {
		delete(s.deadlines, id)
	}
	return nil
}

// Delete drops the deadline for id whatever its value.
func (s *InMemoryStore) Delete(_ context.Context, id models.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadlines, id)
	return nil
}

func normalize(at time.Time) time.Time {
	return at.UTC().Truncate(time.Millisecond)
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hormur/event-syndicator/internal/models"
)

// MemoryJobStore keeps jobs in process memory. Used when no database is configured.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.JobRecord
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.JobRecord)}
}

func (s *MemoryJobStore) Create(ctx context.Context, records []models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if _, exists := s.jobs[rec.ID]; exists {
			return fmt.Errorf("failed to create job %s: already exists", rec.ID)
		}
	}
	for _, rec := range records {
		s.jobs[rec.ID] = rec
	}
	return nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.jobs, id)
	}
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return models.JobRecord{}, ErrJobNotFound
	}
	return rec, nil
}

func (s *MemoryJobStore) MarkActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok || rec.State.Terminal() {
		return ErrJobNotFound
	}
	rec.State = models.JobActive
	rec.UpdatedAt = time.Now().UTC()
	s.jobs[id] = rec
	return nil
}

func (s *MemoryJobStore) Finish(ctx context.Context, id string, res models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok || rec.State.Terminal() {
		return ErrJobNotFound
	}
	rec.State = terminalState(res)
	rec.Result = &res
	rec.UpdatedAt = time.Now().UTC()
	s.jobs[id] = rec
	return nil
}

func (s *MemoryJobStore) Counts(ctx context.Context, platform models.Platform) (models.QueueCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c models.QueueCounts
	for _, rec := range s.jobs {
		if rec.Platform != platform {
			continue
		}
		switch rec.State {
		case models.JobEnqueued:
			c.Waiting++
		case models.JobActive:
			c.Active++
		case models.JobCompleted:
			c.Completed++
		case models.JobFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (s *MemoryJobStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.jobs {
		if rec.State.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryJobStore) HealthCheck(ctx context.Context) error { return nil }

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

// MemoryStore keeps jobs in process memory. It is the default for tests
// and single-process runs; durability across restarts needs one of the
// other backends.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return common.ErrNotFound
	}
	job.UpdatedAt = time.Now().UTC()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Job
	for _, job := range s.jobs {
		if job.Status != constants.JobStatusQueued || job.NextRunAt.After(now) {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = constants.JobStatusActive
	oldest.UpdatedAt = time.Now().UTC()
	cp := *oldest
	return &cp, nil
}

func (s *MemoryStore) SweepCompleted(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status == constants.JobStatusCompleted && job.UpdatedAt.Before(olderThan) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }

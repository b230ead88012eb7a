package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable backing for job state; it is the system of record
// across restarts. The exactly-once-claim guarantee across competing
// workers belongs to the backing store, not the queue logic: ClaimNext
// must never hand the same queued job to two callers.
type Store interface {
	// Create persists a new job.
	Create(ctx context.Context, job *Job) error
	// Get returns a job by id, or common.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	// Update persists the job's mutable fields.
	Update(ctx context.Context, job *Job) error
	// ClaimNext atomically takes the oldest queued job whose NextRunAt
	// has passed, marks it active and returns it; nil when none is due.
	ClaimNext(ctx context.Context, now time.Time) (*Job, error)
	// SweepCompleted prunes completed jobs older than the cutoff and
	// reports how many were removed. Failed jobs are retained for
	// inspection.
	SweepCompleted(ctx context.Context, olderThan time.Time) (int, error)
	// Close releases the backing resources.
	Close() error
}

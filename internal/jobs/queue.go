package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

// Handler executes one job. The report callback publishes progress;
// calls that would move progress backwards are ignored. The returned
// payload becomes the job's result.
type Handler func(ctx context.Context, job *Job, report func(progress int)) (json.RawMessage, error)

// Event is a job lifecycle notification delivered to subscribers.
type Event struct {
	JobID    string              `json:"jobId"`
	Type     string              `json:"type"`
	Status   constants.JobStatus `json:"status"`
	Progress int                 `json:"progress"`
	Error    string              `json:"error,omitempty"`
}

// Options tune the queue's retry and housekeeping behavior.
type Options struct {
	Attempts        int           // per-job attempt ceiling, default 3
	BackoffBase     time.Duration // first retry delay, doubles per attempt
	PollInterval    time.Duration // idle wait between claim attempts
	RetainCompleted time.Duration // how long completed jobs stay queryable
	SweepEvery      time.Duration // retention sweep cadence
}

func (o *Options) withDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.RetainCompleted <= 0 {
		o.RetainCompleted = 24 * time.Hour
	}
	if o.SweepEvery <= 0 {
		o.SweepEvery = time.Hour
	}
}

// Queue runs registered handlers against a Store. Workers poll for due
// jobs; a job that errors is re-queued with exponential backoff until
// its attempt ceiling, then kept as failed.
type Queue struct {
	store  Store
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	subs     map[int]chan Event
	nextSub  int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewQueue(store Store, opts Options, logger *slog.Logger) *Queue {
	opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:    store,
		opts:     opts,
		logger:   logger,
		handlers: make(map[string]Handler),
		subs:     make(map[int]chan Event),
	}
}

// RegisterHandler binds a handler to a job type. Enqueuing a type with
// no handler fails.
func (q *Queue) RegisterHandler(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Enqueue persists a new job and makes it claimable immediately.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload json.RawMessage) (*Job, error) {
	q.mu.RLock()
	_, ok := q.handlers[jobType]
	q.mu.RUnlock()
	if !ok {
		return nil, common.ValidationErrorf("no handler registered for job type %q", jobType)
	}

	job := NewJob(jobType, payload, q.opts.Attempts)
	if err := q.store.Create(ctx, job); err != nil {
		return nil, common.PersistenceError("failed to enqueue job", err)
	}
	q.logger.Info("jobs.enqueue", "job_id", job.ID, "type", jobType)
	return job, nil
}

// EnqueueFolder marshals the payload and enqueues a folder-processing job.
func (q *Queue) EnqueueFolder(ctx context.Context, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, common.ValidationErrorf("encode folder job payload: %v", err)
	}
	return q.Enqueue(ctx, JobTypeFolder, raw)
}

// Status looks up a job by id. Unknown or malformed ids report the
// not-found status rather than an error.
func (q *Queue) Status(ctx context.Context, id string) StatusView {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return StatusView{ID: id, Status: constants.JobStatusNotFound}
	}
	job, err := q.store.Get(ctx, jobID)
	if err != nil {
		if err != common.ErrNotFound {
			q.logger.Error("jobs.status.lookup_failed", "job_id", id, "error", err)
		}
		return StatusView{ID: id, Status: constants.JobStatusNotFound}
	}
	return job.View()
}

// Subscribe returns a channel of job events and a cancel func. Slow
// subscribers drop events rather than stall the workers.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextSub
	q.nextSub++
	ch := make(chan Event, 64)
	q.subs[id] = ch
	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if c, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(c)
		}
	}
}

func (q *Queue) publish(ev Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, ch := range q.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Start launches the worker and retention-sweep loops. It returns
// immediately; Stop waits for in-flight jobs to finish.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx)
	}
	q.wg.Add(1)
	go q.runSweeper(ctx)

	q.logger.Info("jobs.queue.started", "workers", workers, "poll_interval", q.opts.PollInterval)
}

// Stop halts the workers and waits for any claimed job to complete.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		job, err := q.store.ClaimNext(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error("jobs.claim.failed", "error", err)
		} else if job != nil {
			q.process(ctx, job)
			continue // drain without waiting while work is due
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		q.fail(ctx, job, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	job.Attempts++
	started := time.Now()
	q.logger.Info("jobs.process.start", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	report := func(progress int) {
		if progress <= job.Progress || progress > 100 {
			return
		}
		job.Progress = progress
		if err := q.store.Update(ctx, job); err != nil {
			q.logger.Warn("jobs.progress.persist_failed", "job_id", job.ID, "error", err)
		}
		q.publish(Event{JobID: job.ID.String(), Type: job.Type, Status: job.Status, Progress: progress})
	}

	result, err := handler(ctx, job, report)
	if err != nil {
		q.retryOrFail(ctx, job, err)
		return
	}

	job.Status = constants.JobStatusCompleted
	job.Progress = constants.ProgressComplete
	job.Result = result
	job.FailedReason = ""
	if uerr := q.store.Update(ctx, job); uerr != nil {
		q.logger.Error("jobs.complete.persist_failed", "job_id", job.ID, "error", uerr)
	}
	q.logger.Info("jobs.process.ok", "job_id", job.ID, "elapsed_ms", time.Since(started).Milliseconds())
	q.publish(Event{JobID: job.ID.String(), Type: job.Type, Status: job.Status, Progress: job.Progress})
}

func (q *Queue) retryOrFail(ctx context.Context, job *Job, cause error) {
	if job.Attempts >= job.MaxAttempts {
		q.fail(ctx, job, cause)
		return
	}

	delay := q.backoff(job.Attempts)
	job.Status = constants.JobStatusQueued
	job.FailedReason = cause.Error()
	job.NextRunAt = time.Now().UTC().Add(delay)
	if err := q.store.Update(ctx, job); err != nil {
		q.logger.Error("jobs.retry.persist_failed", "job_id", job.ID, "error", err)
	}
	q.logger.Warn("jobs.process.retry",
		"job_id", job.ID, "attempt", job.Attempts, "max_attempts", job.MaxAttempts,
		"delay", delay, "error", cause)
}

func (q *Queue) fail(ctx context.Context, job *Job, cause error) {
	job.Status = constants.JobStatusFailed
	job.FailedReason = cause.Error()
	if err := q.store.Update(ctx, job); err != nil {
		q.logger.Error("jobs.fail.persist_failed", "job_id", job.ID, "error", err)
	}
	q.logger.Error("jobs.process.failed", "job_id", job.ID, "attempts", job.Attempts, "error", cause)
	q.publish(Event{
		JobID:    job.ID.String(),
		Type:     job.Type,
		Status:   constants.JobStatusFailed,
		Progress: job.Progress,
		Error:    job.FailedReason,
	})
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (q *Queue) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.BackoffBase * time.Duration(math.Pow(2, float64(attempt-1)))
}

func (q *Queue) runSweeper(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-q.opts.RetainCompleted)
			n, err := q.store.SweepCompleted(ctx, cutoff)
			if err != nil {
				q.logger.Error("jobs.sweep.failed", "error", err)
				continue
			}
			if n > 0 {
				q.logger.Info("jobs.sweep.ok", "removed", n)
			}
		}
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

func testQueue(t *testing.T, opts Options) (*Queue, *MemoryStore) {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	store := NewMemoryStore()
	q := NewQueue(store, opts, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return q, store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func waitForStatus(t *testing.T, q *Queue, id string, want constants.JobStatus) StatusView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view := q.Status(context.Background(), id)
		if view.Status == want {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return StatusView{}
}

func TestMemoryStoreClaimOrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewJob(JobTypeFolder, nil, 3)
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	second := NewJob(JobTypeFolder, nil, 3)
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	claimed, err := store.ClaimNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID, "oldest queued job claims first")
	assert.Equal(t, constants.JobStatusActive, claimed.Status)

	// a claimed job must not be handed out again
	again, err := store.ClaimNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, second.ID, again.ID)

	none, err := store.ClaimNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStoreDelayedJobNotClaimable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job := NewJob(JobTypeFolder, nil, 3)
	job.NextRunAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.Create(ctx, job))

	claimed, err := store.ClaimNext(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, claimed, "job delayed into the future must stay invisible")

	claimed, err = store.ClaimNext(ctx, time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
}

func TestMemoryStoreSweepCompletedRetainsFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := NewJob(JobTypeFolder, nil, 3)
	done.Status = constants.JobStatusCompleted
	failed := NewJob(JobTypeFolder, nil, 3)
	failed.Status = constants.JobStatusFailed
	require.NoError(t, store.Create(ctx, done))
	require.NoError(t, store.Create(ctx, failed))

	removed, err := store.SweepCompleted(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, done.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	kept, err := store.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, kept.Status)
}

func TestQueueCompletesJobWithMonotonicProgress(t *testing.T) {
	q, _ := testQueue(t, Options{})
	q.RegisterHandler(JobTypeFolder, func(_ context.Context, _ *Job, report func(int)) (json.RawMessage, error) {
		report(constants.ProgressAccepted)
		report(constants.ProgressExtracted)
		report(constants.ProgressAccepted) // regression attempt, must be ignored
		report(constants.ProgressAIDone)
		return json.RawMessage(`{"ok":true}`), nil
	})

	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	q.Start(ctx, 1)
	defer q.Stop()

	job, err := q.EnqueueFolder(ctx, map[string]string{"prompt": "summarize"})
	require.NoError(t, err)

	view := waitForStatus(t, q, job.ID.String(), constants.JobStatusCompleted)
	assert.Equal(t, constants.ProgressComplete, view.Progress)
	assert.JSONEq(t, `{"ok":true}`, string(view.Result))
	assert.Empty(t, view.Error)

	var seen []int
	timeout := time.After(2 * time.Second)
	for len(seen) < 4 {
		select {
		case ev := <-events:
			seen = append(seen, ev.Progress)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", seen)
		}
	}
	assert.Equal(t, []int{10, 40, 80, 100}, seen)
}

func TestQueueRetriesWithBackoffThenFails(t *testing.T) {
	q, store := testQueue(t, Options{Attempts: 3})

	var calls atomic.Int32
	q.RegisterHandler(JobTypeFolder, func(_ context.Context, _ *Job, _ func(int)) (json.RawMessage, error) {
		calls.Add(1)
		return nil, errors.New("provider unavailable")
	})

	ctx := context.Background()
	q.Start(ctx, 1)
	defer q.Stop()

	job, err := q.EnqueueFolder(ctx, map[string]string{"prompt": "x"})
	require.NoError(t, err)

	view := waitForStatus(t, q, job.ID.String(), constants.JobStatusFailed)
	assert.Equal(t, int32(3), calls.Load(), "failing job runs exactly MaxAttempts times")
	assert.Contains(t, view.Error, "provider unavailable")

	// failed jobs are retained and still queryable after the attempt ceiling
	stored, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
}

func TestQueueRecoversOnLaterAttempt(t *testing.T) {
	q, _ := testQueue(t, Options{Attempts: 3})

	var calls atomic.Int32
	q.RegisterHandler(JobTypeFolder, func(_ context.Context, _ *Job, _ func(int)) (json.RawMessage, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return json.RawMessage(`"recovered"`), nil
	})

	ctx := context.Background()
	q.Start(ctx, 1)
	defer q.Stop()

	job, err := q.EnqueueFolder(ctx, map[string]string{"prompt": "x"})
	require.NoError(t, err)

	view := waitForStatus(t, q, job.ID.String(), constants.JobStatusCompleted)
	assert.Equal(t, int32(3), calls.Load())
	assert.JSONEq(t, `"recovered"`, string(view.Result))
	assert.Empty(t, view.Error, "failed reason clears once the job succeeds")
}

func TestQueueStatusUnknownJob(t *testing.T) {
	q, _ := testQueue(t, Options{})
	ctx := context.Background()

	view := q.Status(ctx, "0f79a1aa-30cd-4fcc-8b3f-2c2c7c1f5a55")
	assert.Equal(t, constants.JobStatusNotFound, view.Status)

	view = q.Status(ctx, "not-a-uuid")
	assert.Equal(t, constants.JobStatusNotFound, view.Status)
}

func TestQueueRejectsUnregisteredType(t *testing.T) {
	q, _ := testQueue(t, Options{})
	_, err := q.Enqueue(context.Background(), "no-such-type", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestBackoffDoubles(t *testing.T) {
	q, _ := testQueue(t, Options{BackoffBase: time.Second})
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            UUID PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	payload       BYTEA,
	result        BYTEA,
	failed_reason TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	next_run_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_next ON jobs(status, next_run_at);
`

// PostgresStore backs the queue with a shared database so multiple
// workers can compete for jobs; FOR UPDATE SKIP LOCKED keeps a claimed
// job invisible to the next claimer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docpipe"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply jobs schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, status, progress, payload, result, failed_reason,
			attempts, max_attempts, created_at, updated_at, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Type, string(job.Status), job.Progress,
		[]byte(job.Payload), []byte(job.Result), job.FailedReason,
		job.Attempts, job.MaxAttempts, job.CreatedAt, job.UpdatedAt, job.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const pgSelectColumns = `id, type, status, progress, payload, result, failed_reason,
	attempts, max_attempts, created_at, updated_at, next_run_at`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSelectColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (s *PostgresStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, progress = $2, result = $3, failed_reason = $4,
			attempts = $5, updated_at = $6, next_run_at = $7
		WHERE id = $8`,
		string(job.Status), job.Progress, []byte(job.Result), job.FailedReason,
		job.Attempts, job.UpdatedAt, job.NextRunAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $2 AND next_run_at <= $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pgSelectColumns,
		string(constants.JobStatusActive), string(constants.JobStatusQueued), now)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *PostgresStore) SweepCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status = $1 AND updated_at < $2`,
		string(constants.JobStatusCompleted), olderThan)
	if err != nil {
		return 0, fmt.Errorf("sweep completed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgJob(row pgx.Row) (*Job, error) {
	var (
		job             Job
		status          string
		payload, result []byte
	)
	err := row.Scan(&job.ID, &job.Type, &status, &job.Progress, &payload, &result,
		&job.FailedReason, &job.Attempts, &job.MaxAttempts,
		&job.CreatedAt, &job.UpdatedAt, &job.NextRunAt)
	if err != nil {
		return nil, err
	}
	job.Status = constants.JobStatus(status)
	job.Payload = payload
	job.Result = result
	return &job, nil
}

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rapidassist/docpipe/constants"
	"github.com/rapidassist/docpipe/internal/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	payload       BLOB,
	result        BLOB,
	failed_reason TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	next_run_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_next ON jobs(status, next_run_at);
`

// SQLiteStore is the embedded durable backend.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite handles one writer at a time; serialize through one conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply jobs schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, progress, payload, result, failed_reason,
			attempts, max_attempts, created_at, updated_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Type, string(job.Status), job.Progress,
		[]byte(job.Payload), []byte(job.Result), job.FailedReason,
		job.Attempts, job.MaxAttempts,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(), job.NextRunAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, progress, payload, result, failed_reason,
			attempts, max_attempts, created_at, updated_at, next_run_at
		FROM jobs WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return job, err
}

func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, result = ?, failed_reason = ?,
			attempts = ?, updated_at = ?, next_run_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, []byte(job.Result), job.FailedReason,
		job.Attempts, job.UpdatedAt.UnixMilli(), job.NextRunAt.UnixMilli(),
		job.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, now time.Time) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, type, status, progress, payload, result, failed_reason,
			attempts, max_attempts, created_at, updated_at, next_run_at
		FROM jobs
		WHERE status = ? AND next_run_at <= ?
		ORDER BY created_at LIMIT 1`,
		string(constants.JobStatusQueued), now.UnixMilli())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Status = constants.JobStatusActive
	job.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), job.UpdatedAt.UnixMilli(), job.ID.String()); err != nil {
		return nil, fmt.Errorf("mark active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) SweepCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = ? AND updated_at < ?`,
		string(constants.JobStatusCompleted), olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                             Job
		id, status                      string
		payload, result                 []byte
		createdAt, updatedAt, nextRunAt int64
	)
	err := row.Scan(&id, &job.Type, &status, &job.Progress, &payload, &result,
		&job.FailedReason, &job.Attempts, &job.MaxAttempts,
		&createdAt, &updatedAt, &nextRunAt)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	job.Payload = payload
	job.Result = result
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	job.NextRunAt = time.UnixMilli(nextRunAt).UTC()
	return &job, nil
}

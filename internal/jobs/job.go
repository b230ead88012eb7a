package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rapidassist/docpipe/constants"
)

// JobTypeFolder is the folder-processing job kind.
const JobTypeFolder = "folder-processing"

// Job is one durable unit of background work. Status moves
// queued -> active -> {completed, failed}; failed attempts re-queue with
// exponential backoff until MaxAttempts is exhausted.
type Job struct {
	ID           uuid.UUID
	Type         string
	Status       constants.JobStatus
	Progress     int // 0..100, monotonic until terminal
	Payload      json.RawMessage
	Result       json.RawMessage
	FailedReason string
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRunAt    time.Time
}

// NewJob builds a queued job with the given payload.
func NewJob(jobType string, payload json.RawMessage, maxAttempts int) *Job {
	now := time.Now().UTC()
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Status:      constants.JobStatusQueued,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRunAt:   now,
	}
}

// StatusView is the externally visible job state returned by lookups.
type StatusView struct {
	ID       string               `json:"id,omitempty"`
	Status   constants.JobStatus  `json:"status"`
	Progress int                  `json:"progress,omitempty"`
	Result   json.RawMessage      `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// View projects the job into its status form.
func (j *Job) View() StatusView {
	return StatusView{
		ID:       j.ID.String(),
		Status:   j.Status,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.FailedReason,
	}
}

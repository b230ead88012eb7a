package constants

// JobStatus is the canonical status for background jobs.
type JobStatus string

// Stable values (stores persist these exact strings).
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusNotFound  JobStatus = "not-found" // status lookup for an unknown id
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress checkpoints for a folder job.
const (
	ProgressAccepted  = 10
	ProgressExtracted = 40
	ProgressAIReady   = 50
	ProgressAIDone    = 80
	ProgressComplete  = 100
)

package models

import "time"

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether the state can no longer change.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type StrategyKind string

const (
	StrategyChunked  StrategyKind = "chunked"
	StrategySetBased StrategyKind = "set_based"
)

// Job is one bulk membership operation.
type Job struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	State          JobState     `json:"state"`
	Strategy       StrategyKind `json:"strategy"`
	CollectionID   string       `json:"collection_id"`
	Done           int          `json:"done"`
	Total          int          `json:"total"`
	Params         string       `json:"-"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Fingerprint    string       `json:"-"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Progress is done/total as a percentage, 0 while total is unknown.
func (j *Job) Progress() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Done) / float64(j.Total) * 100
}

// Snapshot builds the progress update observers receive for the job's
// current state.
func (j *Job) Snapshot() ProgressUpdate {
	return ProgressUpdate{
		Type:     UpdateProgress,
		JobID:    j.ID,
		State:    j.State,
		Done:     j.Done,
		Total:    j.Total,
		Progress: j.Progress(),
		Error:    j.ErrorMessage,
	}
}

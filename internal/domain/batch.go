package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrJobConflict  = errors.New("a batch job is already in progress")
	ErrBatchFailed  = errors.New("batch job failed")
	ErrBatchTimeout = errors.New("batch job polling budget exhausted")
)

type BatchJobStatus string

const (
	BatchJobBuilding   BatchJobStatus = "building"
	BatchJobSubmitted  BatchJobStatus = "submitted"
	BatchJobInProgress BatchJobStatus = "in-progress"
	BatchJobCompleted  BatchJobStatus = "completed"
	BatchJobFailed     BatchJobStatus = "failed"
	BatchJobStopped    BatchJobStatus = "stopped"
)

// Terminal reports whether the job can no longer make progress.
func (s BatchJobStatus) Terminal() bool {
	switch s {
	case BatchJobCompleted, BatchJobFailed, BatchJobStopped:
		return true
	}
	return false
}

// BatchJob tracks one asynchronous bulk-inference job from manifest build to
// output fetch.
type BatchJob struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        BatchJobStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	ModelID       string         `json:"model_id"`
	InputKey      string         `json:"input_key"`
	OutputPrefix  string         `json:"output_prefix"`
	RecordCount   int            `json:"record_count"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
}

// BatchSubmission is the request handed to the batch runner.
type BatchSubmission struct {
	JobName      string
	ModelID      string
	RoleARN      string
	InputKey     string
	OutputPrefix string
	RecordCount  int
}

// JobState is a point-in-time view of a submitted job as reported by the
// runner backend.
type JobState struct {
	Status  BatchJobStatus
	Message string
}

// BatchRunner drives bulk-inference jobs on the backend provider.
type BatchRunner interface {
	// Submit starts a job and returns its backend identifier.
	Submit(ctx context.Context, sub BatchSubmission) (string, error)
	// Status reports the current state of a previously submitted job.
	Status(ctx context.Context, jobID string) (JobState, error)
	// CountActive returns the number of non-terminal jobs whose names start
	// with prefix.
	CountActive(ctx context.Context, prefix string) (int, error)
	// MinRecordCount is the smallest manifest the backend accepts.
	MinRecordCount() int
}

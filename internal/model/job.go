package model

import "time"

// JobStatus is the lifecycle state of a pipeline job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Job represents a background pipeline job in the system.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Payload     []byte     `json:"payload,omitempty"` // Stored as JSON
	Result      []byte     `json:"result,omitempty"`  // Stored as JSON
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// MediaJob is the unit of work handed to the pipeline: an uploaded media
// object, its authoritative duration, and the account that pays for it.
// It lives only for the duration of pipeline execution.
type MediaJob struct {
	MediaKey  string  `json:"mediaKey"`
	Duration  float64 `json:"duration"` // seconds; upper bound for all timestamps
	AccountID string  `json:"accountId"`
	Title     string  `json:"title,omitempty"`
}

// PipelineResult is the terminal output of a successful pipeline job.
type PipelineResult struct {
	MediaKey   string     `json:"mediaKey"`
	Transcript string     `json:"transcript"`
	KeyPoints  []KeyPoint `json:"keyPoints"`
	// ClipFailures counts segments whose clip could not be materialized.
	// Their key points are still present, with an empty clip key.
	ClipFailures int `json:"clipFailures,omitempty"`
}

package model

import "time"

// SubmitJobRequest starts a transcription + key-point pipeline job for a
// previously uploaded media object.
type SubmitJobRequest struct {
	MediaKey string  `json:"mediaKey" validate:"required,min=1"`
	Duration float64 `json:"duration" validate:"required,gt=0"`
	Title    string  `json:"title" validate:"omitempty,max=200"`
}

// SubmitJobResponse acknowledges a queued pipeline job.
type SubmitJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse reports pipeline progress.
type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// UploadMediaResponse describes a stored media object.
type UploadMediaResponse struct {
	MediaKey    string    `json:"mediaKey"`
	Size        int64     `json:"size"`
	Duration    float64   `json:"duration"` // 0 when probing was unavailable
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BalanceResponse reports an account's token balance.
type BalanceResponse struct {
	AccountID       string `json:"accountId"`
	TotalTokens     int64  `json:"totalTokens"`
	UsedTokens      int64  `json:"usedTokens"`
	AvailableTokens int64  `json:"availableTokens"`
}

// ClipURLResponse carries a time-limited download URL for a clip.
type ClipURLResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

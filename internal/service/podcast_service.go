package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/token"
)

// Task types
const (
	TaskTypePipeline = "pipeline:process"
	QueuePipeline    = "pipeline"
)

// ErrJobNotFound is returned when no job record exists for the given ID.
var ErrJobNotFound = errors.New("job not found")

// PodcastService owns the job lifecycle: admission, enqueueing, status
// tracking and cancellation. Job records live in Redis with a 24h TTL;
// the pipeline itself runs in a worker consuming the asynq queue.
type PodcastService struct {
	redis             *redis.Client
	asynqClient       *asynq.Client
	meter             *token.Meter
	admissionEstimate int64
	log               zerolog.Logger
}

func NewPodcastService(redisClient *redis.Client, asynqClient *asynq.Client, meter *token.Meter, admissionEstimate int64, log zerolog.Logger) *PodcastService {
	return &PodcastService{
		redis:             redisClient,
		asynqClient:       asynqClient,
		meter:             meter,
		admissionEstimate: admissionEstimate,
		log:               log,
	}
}

// Submit admits and queues a new pipeline job. Admission reserves the
// configured token estimate against the account so that concurrent
// submissions cannot jointly overrun the balance; the reservation is
// released when the job reaches a terminal state.
func (s *PodcastService) Submit(ctx context.Context, accountID string, mediaJob *model.MediaJob) (*model.SubmitJobResponse, error) {
	jobID := uuid.New().String()

	if err := s.meter.Reserve(ctx, accountID, jobID, s.admissionEstimate); err != nil {
		return nil, err
	}

	payloadBytes, err := json.Marshal(mediaJob)
	if err != nil {
		s.meter.Release(accountID, jobID)
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}

	if err := s.saveJob(ctx, job); err != nil {
		s.meter.Release(accountID, jobID)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newPipelineTask(jobID, payloadBytes)
	if err != nil {
		s.meter.Release(accountID, jobID)
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// A failed pipeline run is never retried blindly: token debits are
	// not idempotent across attempts.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.meter.Release(accountID, jobID)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.Info().Str("jobId", jobID).Str("accountId", accountID).Str("mediaKey", mediaJob.MediaKey).Msg("pipeline job queued")

	return &model.SubmitJobResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: job.CreatedAt,
	}, nil
}

// GetStatus returns the current status of a pipeline job.
func (s *PodcastService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		ErrorCode:   job.ErrorCode,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the result of a succeeded pipeline job.
func (s *PodcastService) GetResult(ctx context.Context, jobID string) (*model.PipelineResult, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.PipelineResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Cancel requests cancellation of a queued or running job. The worker
// observes the flag between pipeline stages; stages already in flight
// run to completion.
func (s *PodcastService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusSucceeded || job.Status == model.JobStatusFailed {
		return fmt.Errorf("job already finished")
	}

	if err := s.redis.Set(ctx, cancelKey(jobID), "1", 24*time.Hour).Err(); err != nil {
		return err
	}

	if job.Status == model.JobStatusQueued {
		// Not picked up yet; mark terminal immediately.
		job.Status = model.JobStatusCanceled
		now := time.Now()
		job.CompletedAt = &now
		return s.saveJob(ctx, job)
	}
	return nil
}

// IsCanceled reports whether cancellation was requested for the job.
func (s *PodcastService) IsCanceled(ctx context.Context, jobID string) bool {
	n, err := s.redis.Exists(ctx, cancelKey(jobID)).Result()
	return err == nil && n > 0
}

// UpdateJobProgress moves the job to running and records step progress.
func (s *PodcastService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		s.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to load job for progress update")
		return
	}

	job.Status = model.JobStatusRunning
	job.Progress = progress
	job.CurrentStep = step
	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}

	if err := s.saveJob(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to save job progress")
	}
}

// CompleteJob stores the result and marks the job succeeded.
func (s *PodcastService) CompleteJob(ctx context.Context, jobID string, result *model.PipelineResult) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		s.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to load job for completion")
		return
	}

	resultBytes, _ := json.Marshal(result)
	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.CurrentStep = ""
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		s.log.Error().Err(err).Str("jobId", jobID).Msg("failed to save completed job")
	}
}

// FailJob marks the job failed with a stable error code and message.
func (s *PodcastService) FailJob(ctx context.Context, jobID, code, msg string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		s.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to load job for failure")
		return
	}

	job.Status = model.JobStatusFailed
	job.Error = &msg
	job.ErrorCode = code
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		s.log.Error().Err(err).Str("jobId", jobID).Msg("failed to save failed job")
	}
}

// CancelJobRecord marks the job canceled after the worker stopped it.
func (s *PodcastService) CancelJobRecord(ctx context.Context, jobID string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	job.Status = model.JobStatusCanceled
	now := time.Now()
	job.CompletedAt = &now
	if err := s.saveJob(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("jobId", jobID).Msg("failed to save canceled job")
	}
}

// GetJob loads a job record from Redis.
func (s *PodcastService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *PodcastService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, 24*time.Hour).Err()
}

func jobKey(jobID string) string    { return fmt.Sprintf("job:%s", jobID) }
func cancelKey(jobID string) string { return fmt.Sprintf("job:%s:cancel", jobID) }

func newPipelineTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": payload,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}

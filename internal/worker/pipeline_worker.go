package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/service"
	"github.com/coeus-solutions/api-podcast/internal/token"
	"github.com/coeus-solutions/api-podcast/internal/websocket"
	"github.com/coeus-solutions/api-podcast/pkg/response"
)

// PipelineWorker runs the transcription pipeline: speech-to-text, timed
// key-point extraction, then clip materialization. Stages run strictly in
// order; cancellation is observed between stages, never mid-stage.
type PipelineWorker struct {
	jobs        *service.PodcastService
	transcriber *service.TranscribeService
	extractor   *service.KeyPointService
	clips       *service.ClipService
	meter       *token.Meter
	hub         *websocket.Hub
	log         zerolog.Logger
}

func NewPipelineWorker(
	jobs *service.PodcastService,
	transcriber *service.TranscribeService,
	extractor *service.KeyPointService,
	clips *service.ClipService,
	meter *token.Meter,
	hub *websocket.Hub,
	log zerolog.Logger,
) *PipelineWorker {
	return &PipelineWorker{
		jobs:        jobs,
		transcriber: transcriber,
		extractor:   extractor,
		clips:       clips,
		meter:       meter,
		hub:         hub,
		log:         log,
	}
}

// ProcessTask handles one pipeline job end to end.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log := w.log.With().Str("jobId", jobID).Logger()
	log.Info().Msg("starting pipeline job")

	var job model.MediaJob
	if err := json.Unmarshal(taskPayload.Payload, &job); err != nil {
		w.failJob(ctx, jobID, response.CodePipelineError, "invalid job payload")
		return fmt.Errorf("failed to unmarshal media job: %w", err)
	}

	// The admission reservation was placed at submit time. It must not
	// outlive the job, whatever the outcome.
	defer w.meter.Release(job.AccountID, jobID)

	if w.checkCanceled(ctx, jobID) {
		return nil
	}

	w.updateProgress(ctx, jobID, 5, "Transcribing audio...")

	transcript, err := w.transcriber.Transcribe(ctx, &job)
	if err != nil {
		log.Error().Err(err).Msg("transcription stage failed")
		w.failJob(ctx, jobID, errorCode(err), err.Error())
		return err
	}

	if w.checkCanceled(ctx, jobID) {
		return nil
	}

	w.updateProgress(ctx, jobID, 45, "Extracting key points...")

	segments, err := w.extractor.Extract(ctx, transcript, job.Duration, job.AccountID)
	if err != nil {
		log.Error().Err(err).Msg("extraction stage failed")
		w.failJob(ctx, jobID, errorCode(err), err.Error())
		return err
	}

	if w.checkCanceled(ctx, jobID) {
		return nil
	}

	w.updateProgress(ctx, jobID, 75, "Cutting clips...")

	keyPoints, clipFailures, err := w.clips.MaterializeAll(ctx, job.MediaKey, segments)
	if err != nil {
		// Clip failures degrade the result instead of failing the job:
		// transcript and key points are already paid for.
		log.Warn().Err(err).Msg("clip stage failed, returning key points without clips")
		keyPoints = make([]model.KeyPoint, len(segments))
		for i, seg := range segments {
			keyPoints[i] = model.KeyPoint{
				Content:   seg.Content,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
			}
		}
		clipFailures = len(segments)
	}

	result := &model.PipelineResult{
		MediaKey:     job.MediaKey,
		Transcript:   transcript,
		KeyPoints:    keyPoints,
		ClipFailures: clipFailures,
	}

	w.jobs.CompleteJob(ctx, jobID, result)
	w.hub.BroadcastComplete(jobID, result)

	log.Info().Int("keyPoints", len(keyPoints)).Int("clipFailures", clipFailures).Msg("pipeline job completed")
	return nil
}

func (w *PipelineWorker) checkCanceled(ctx context.Context, jobID string) bool {
	if !w.jobs.IsCanceled(ctx, jobID) {
		return false
	}
	w.log.Info().Str("jobId", jobID).Msg("pipeline job canceled")
	w.jobs.CancelJobRecord(ctx, jobID)
	w.hub.BroadcastError(jobID, response.CodeCanceled, "job canceled")
	return true
}

func (w *PipelineWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	w.jobs.UpdateJobProgress(ctx, jobID, progress, step)
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *PipelineWorker) failJob(ctx context.Context, jobID, code, msg string) {
	w.jobs.FailJob(ctx, jobID, code, msg)
	w.hub.BroadcastError(jobID, code, msg)
}

// errorCode maps pipeline errors to the stable codes surfaced in job
// records and the HTTP API.
func errorCode(err error) string {
	var insufficient *token.InsufficientTokensError
	if errors.As(err, &insufficient) {
		return response.CodeInsufficientTokens
	}
	switch {
	case errors.Is(err, service.ErrTranscriptionFailed):
		return response.CodeTranscriptionFailed
	case errors.Is(err, service.ErrExtractionParseFailed):
		return response.CodeExtractionParseFailed
	case errors.Is(err, service.ErrExtractionBackendFailed):
		return response.CodeExtractionFailed
	default:
		return response.CodePipelineError
	}
}

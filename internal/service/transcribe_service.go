package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/config"
	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/token"
)

// Splitter cuts a local media file into transcribable pieces.
// media.FFmpeg implements both strategies.
type Splitter interface {
	SplitByDuration(ctx context.Context, srcPath, destDir string, chunkSeconds float64) ([]string, error)
	SplitBytes(srcPath, destDir string, blockSize int64) ([]string, error)
}

// TranscribeService turns a stored media object into one transcript
// string, chunking the media when it exceeds the backend size limit.
type TranscribeService struct {
	storage     client.StorageClient
	stt         client.SpeechToText
	splitter    Splitter
	meter       *token.Meter
	threshold   int64
	concurrency int
	estimate    int64
	log         zerolog.Logger
}

func NewTranscribeService(
	storage client.StorageClient,
	stt client.SpeechToText,
	splitter Splitter,
	meter *token.Meter,
	pipelineCfg *config.PipelineConfig,
	tokensCfg *config.TokensConfig,
	log zerolog.Logger,
) *TranscribeService {
	concurrency := pipelineCfg.ChunkConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &TranscribeService{
		storage:     storage,
		stt:         stt,
		splitter:    splitter,
		meter:       meter,
		threshold:   pipelineCfg.SizeThresholdBytes,
		concurrency: concurrency,
		estimate:    tokensCfg.TranscribeEstimate,
		log:         log,
	}
}

// Transcribe fetches the job's media into scratch storage, transcribes
// it (whole or chunked) and debits the transcript's token cost to the
// owning account. Scratch files are released on every exit path.
func (s *TranscribeService) Transcribe(ctx context.Context, job *model.MediaJob) (string, error) {
	if err := s.meter.CheckBalance(ctx, job.AccountID, s.estimate); err != nil {
		return "", err
	}

	workDir, err := os.MkdirTemp("", "transcribe-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath, size, err := s.fetchSource(ctx, job.MediaKey, workDir)
	if err != nil {
		return "", err
	}

	var transcript string
	if size <= s.threshold {
		text, terr := s.stt.Transcribe(ctx, srcPath)
		if terr != nil {
			return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, terr)
		}
		transcript = strings.TrimSpace(text)
	} else {
		transcript, err = s.transcribeChunked(ctx, srcPath, workDir, size, job.Duration)
		if err != nil {
			return "", err
		}
	}

	cost := token.Count(transcript)
	if err := s.meter.Debit(ctx, job.AccountID, cost); err != nil {
		return "", err
	}
	s.log.Info().
		Str("mediaKey", job.MediaKey).
		Int64("sizeBytes", size).
		Int64("tokens", cost).
		Msg("media transcribed")

	return transcript, nil
}

// fetchSource downloads the media object into workDir and returns its
// local path and byte size.
func (s *TranscribeService) fetchSource(ctx context.Context, mediaKey, workDir string) (string, int64, error) {
	srcPath := filepath.Join(workDir, "source"+filepath.Ext(mediaKey))
	f, err := os.Create(srcPath)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	size, err := s.storage.Download(ctx, mediaKey, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("fetch media %s: %w", mediaKey, err)
	}
	return srcPath, size, nil
}

// transcribeChunked splits the oversized source and transcribes each
// chunk independently. Chunk calls run concurrently; the transcript is
// merged in chunk-index order, not completion order. Individual chunk
// failures are skipped as long as at least one chunk succeeds.
func (s *TranscribeService) transcribeChunked(ctx context.Context, srcPath, workDir string, size int64, duration float64) (string, error) {
	chunks, err := s.split(ctx, srcPath, workDir, size, duration)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	results := make([]string, len(chunks))
	succeeded := make([]bool, len(chunks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	for i, chunkPath := range chunks {
		wg.Add(1)
		go func(i int, chunkPath string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := s.stt.Transcribe(ctx, chunkPath)
			if err != nil {
				s.log.Warn().Err(err).Int("chunk", i).Msg("chunk transcription failed, skipping")
				return
			}
			results[i] = strings.TrimSpace(text)
			succeeded[i] = true
		}(i, chunkPath)
	}
	wg.Wait()

	parts := make([]string, 0, len(chunks))
	for i := range chunks {
		if succeeded[i] && results[i] != "" {
			parts = append(parts, results[i])
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: all %d chunks failed", ErrTranscriptionFailed, len(chunks))
	}

	return strings.Join(parts, " "), nil
}

// split prefers the duration-aware strategy and falls back to a raw byte
// split when audio-aware decoding is unavailable or fails. The fallback
// trades transcription quality for guaranteed forward progress.
func (s *TranscribeService) split(ctx context.Context, srcPath, workDir string, size int64, duration float64) ([]string, error) {
	chunkDir := filepath.Join(workDir, "chunks")
	if err := os.Mkdir(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	if duration > 0 {
		chunkSeconds := math.Floor(float64(s.threshold) * duration / float64(size))
		if chunkSeconds >= 1 {
			chunks, err := s.splitter.SplitByDuration(ctx, srcPath, chunkDir, chunkSeconds)
			if err == nil {
				return chunks, nil
			}
			s.log.Warn().Err(err).Msg("duration-aware split failed, falling back to byte split")
		}
	}

	return s.splitter.SplitBytes(srcPath, chunkDir, s.threshold)
}

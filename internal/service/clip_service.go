package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/model"
)

// Cutter extracts a time window from a local media file.
// media.FFmpeg implements it with stream copy.
type Cutter interface {
	Cut(ctx context.Context, srcPath, destPath string, start, duration float64) error
}

// ClipService materializes validated key-point segments into durable
// sub-clip artifacts. Clips are write-once, independent artifacts: one
// segment's failure never invalidates the others.
type ClipService struct {
	storage     client.StorageClient
	cutter      Cutter
	concurrency int
	log         zerolog.Logger
}

func NewClipService(storage client.StorageClient, cutter Cutter, concurrency int, log zerolog.Logger) *ClipService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ClipService{
		storage:     storage,
		cutter:      cutter,
		concurrency: concurrency,
		log:         log,
	}
}

// MaterializeAll fetches the source once into scratch storage and cuts
// all segments concurrently against the shared read-only copy. It
// returns one key point per segment, in order; a key point whose clip
// failed carries an empty clip key. The second return value counts
// failures.
func (s *ClipService) MaterializeAll(ctx context.Context, mediaKey string, segments []model.KeyPointSegment) ([]model.KeyPoint, int, error) {
	if len(segments) == 0 {
		return nil, 0, nil
	}

	workDir, err := os.MkdirTemp("", "clips-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "source"+filepath.Ext(mediaKey))
	f, err := os.Create(srcPath)
	if err != nil {
		return nil, 0, fmt.Errorf("create scratch file: %w", err)
	}
	_, err = s.storage.Download(ctx, mediaKey, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, 0, fmt.Errorf("fetch media %s: %w", mediaKey, err)
	}

	keyPoints := make([]model.KeyPoint, len(segments))
	failed := make([]bool, len(segments))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	for i, seg := range segments {
		wg.Add(1)
		go func(i int, seg model.KeyPointSegment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			kp := model.KeyPoint{
				Content:   seg.Content,
				StartTime: seg.StartTime,
				EndTime:   seg.EndTime,
			}

			destPath := filepath.Join(workDir, fmt.Sprintf("clip_%03d%s", i, filepath.Ext(srcPath)))
			clipKey, err := s.materialize(ctx, srcPath, destPath, seg)
			if err != nil {
				s.log.Warn().Err(err).Int("segment", i).Msg("clip materialization failed")
				failed[i] = true
			} else {
				kp.ClipKey = clipKey
			}
			keyPoints[i] = kp
		}(i, seg)
	}
	wg.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	return keyPoints, failures, nil
}

// materialize cuts one segment and uploads it under a fresh key. The
// returned locator is the only thing callers ever see; raw bytes stay in
// scratch storage.
func (s *ClipService) materialize(ctx context.Context, srcPath, destPath string, seg model.KeyPointSegment) (string, error) {
	if err := s.cutter.Cut(ctx, srcPath, destPath, seg.StartTime, seg.EndTime-seg.StartTime); err != nil {
		return "", fmt.Errorf("%w: %v", ErrClipMaterializationFailed, err)
	}

	f, err := os.Open(destPath)
	if err != nil {
		return "", fmt.Errorf("%w: open clip: %v", ErrClipMaterializationFailed, err)
	}
	defer f.Close()

	ext := filepath.Ext(destPath)
	key := fmt.Sprintf("clips/%s%s", uuid.New().String(), ext)
	if _, err := s.storage.Upload(ctx, key, f, ContentTypeForExt(ext)); err != nil {
		return "", fmt.Errorf("%w: upload clip: %v", ErrClipMaterializationFailed, err)
	}
	return key, nil
}

// Cleanup deletes stored artifacts best-effort: failures are logged and
// never escalate past the primary operation's result. Returns the count
// of successful deletes.
func (s *ClipService) Cleanup(ctx context.Context, keys []string) int {
	deleted := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("best-effort delete failed")
			continue
		}
		deleted++
	}
	return deleted
}

// ContentTypeForExt maps a media file extension to its MIME type.
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

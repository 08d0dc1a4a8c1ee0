package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/model"
)

// Prober reads a local media file's duration.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// MediaUploadService stores uploaded media objects and hands out signed
// URLs for stored clips.
type MediaUploadService struct {
	storage client.StorageClient
	prober  Prober
	log     zerolog.Logger
}

func NewMediaUploadService(storage client.StorageClient, prober Prober, log zerolog.Logger) *MediaUploadService {
	return &MediaUploadService{
		storage: storage,
		prober:  prober,
		log:     log,
	}
}

// Upload spools the stream to scratch storage, probes its duration
// best-effort and stores it under a fresh media key. A probe failure is
// reported as duration 0, not an upload failure; callers supply the
// authoritative duration at job submission anyway.
func (s *MediaUploadService) Upload(ctx context.Context, filename string, r io.Reader, size int64) (*model.UploadMediaResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	duration := 0.0
	if d, err := s.prober.Probe(ctx, tmp.Name()); err != nil {
		s.log.Warn().Err(err).Str("filename", filename).Msg("duration probe failed")
	} else {
		duration = d
	}

	f, err := os.Open(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("reopen scratch file: %w", err)
	}
	defer f.Close()

	contentType := ContentTypeForExt(ext)
	key := fmt.Sprintf("media/%s%s", uuid.New().String(), ext)
	if _, err := s.storage.Upload(ctx, key, f, contentType); err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}

	return &model.UploadMediaResponse{
		MediaKey:    key,
		Size:        written,
		Duration:    duration,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}, nil
}

// SignedClipURL returns a time-limited download URL for a stored object.
func (s *MediaUploadService) SignedClipURL(ctx context.Context, key string, ttl time.Duration) (*model.ClipURLResponse, error) {
	url, err := s.storage.SignedURL(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return &model.ClipURLResponse{
		Key:       key,
		URL:       url,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

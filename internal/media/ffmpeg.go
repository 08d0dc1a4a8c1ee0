package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg shells out to ffmpeg/ffprobe for probing, time-window splitting
// and stream-copy cutting. Binary paths are injectable for tests.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
}

// Probe returns the media duration in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", filepath.Base(path), err)
	}
	return duration, nil
}

// SplitByDuration cuts the source into consecutive time windows of
// chunkSeconds each, re-encoding every window into an independently
// playable file. Returns chunk paths in chronological order.
func (f *FFmpeg) SplitByDuration(ctx context.Context, srcPath, destDir string, chunkSeconds float64) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("split %s: chunk duration must be positive, got %v", filepath.Base(srcPath), chunkSeconds)
	}

	total, err := f.Probe(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, fmt.Errorf("split %s: zero duration", filepath.Base(srcPath))
	}

	count := int(math.Ceil(total / chunkSeconds))
	ext := filepath.Ext(srcPath)
	paths := make([]string, 0, count)

	for i := 0; i < count; i++ {
		start := float64(i) * chunkSeconds
		out := filepath.Join(destDir, fmt.Sprintf("chunk_%03d%s", i, ext))

		cmd := exec.CommandContext(ctx, f.ffmpegPath,
			"-y",
			"-i", srcPath,
			"-ss", formatSeconds(start),
			"-t", formatSeconds(chunkSeconds),
			out,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg split chunk %d: %w: %s", i, err, tail(stderr.String()))
		}
		paths = append(paths, out)
	}
	return paths, nil
}

// Cut extracts [start, start+duration) into destPath using stream copy,
// so the cost is proportional to the clip, not the whole file.
func (f *FFmpeg) Cut(ctx context.Context, srcPath, destPath string, start, duration float64) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-y",
		"-i", srcPath,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-c", "copy",
		destPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg cut %s: %w: %s", filepath.Base(destPath), err, tail(stderr.String()))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// tail keeps error messages bounded; ffmpeg stderr can run long.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 300
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

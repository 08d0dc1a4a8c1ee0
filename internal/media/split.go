package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SplitBytes cuts the raw bytes of srcPath into fixed-size blocks with no
// regard for media framing. It is the fallback when duration-aware
// splitting is unavailable: a block may not transcribe meaningfully, but
// the pipeline keeps moving instead of failing hard.
func (f *FFmpeg) SplitBytes(srcPath, destDir string, blockSize int64) ([]string, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("split %s: block size must be positive, got %d", filepath.Base(srcPath), blockSize)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", filepath.Base(srcPath), err)
	}
	defer src.Close()

	ext := filepath.Ext(srcPath)
	var paths []string

	for i := 0; ; i++ {
		out := filepath.Join(destDir, fmt.Sprintf("block_%03d%s", i, ext))
		written, err := copyBlock(src, out, blockSize)
		if err != nil {
			return nil, fmt.Errorf("split %s block %d: %w", filepath.Base(srcPath), i, err)
		}
		if written == 0 {
			break
		}
		paths = append(paths, out)
		if written < blockSize {
			break
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("split %s: empty source", filepath.Base(srcPath))
	}
	return paths, nil
}

func copyBlock(src io.Reader, destPath string, n int64) (int64, error) {
	dst, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	written, err := io.CopyN(dst, src, n)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return written, err
	}
	if written == 0 {
		os.Remove(destPath)
	}
	return written, nil
}

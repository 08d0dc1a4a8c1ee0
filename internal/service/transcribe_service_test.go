package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/config"
	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/token"
)

// fakeStorage serves in-memory objects and records uploads and deletes.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads []string
	deletes []string

	downloadErr error
	uploadErr   error
	deleteErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.uploads = append(f.uploads, key)
	return key, nil
}

func (f *fakeStorage) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	if f.downloadErr != nil {
		return 0, f.downloadErr
	}
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("object %s not found", key)
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeStorage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://storage.test/" + key + "?signed", nil
}

// fakeSTT transcribes by file base name; paths without an entry fail.
type fakeSTT struct {
	mu      sync.Mutex
	byName  map[string]string
	delays  map[string]time.Duration
	calls   []string
	failAll bool
}

func (f *fakeSTT) Transcribe(ctx context.Context, audioPath string) (string, error) {
	name := filepath.Base(audioPath)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.failAll {
		return "", errors.New("backend unavailable")
	}
	if d, ok := f.delays[name]; ok {
		time.Sleep(d)
	}
	text, ok := f.byName[name]
	if !ok {
		return "", fmt.Errorf("no transcript for %s", name)
	}
	return text, nil
}

// fakeSplitter writes n chunk files into destDir.
type fakeSplitter struct {
	chunks      int
	durationErr error
}

func (f *fakeSplitter) SplitByDuration(ctx context.Context, srcPath, destDir string, chunkSeconds float64) ([]string, error) {
	if f.durationErr != nil {
		return nil, f.durationErr
	}
	return f.write(destDir, "chunk")
}

func (f *fakeSplitter) SplitBytes(srcPath, destDir string, blockSize int64) ([]string, error) {
	return f.write(destDir, "block")
}

func (f *fakeSplitter) write(destDir, prefix string) ([]string, error) {
	paths := make([]string, f.chunks)
	for i := range paths {
		p := filepath.Join(destDir, fmt.Sprintf("%s_%03d.mp3", prefix, i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

func newTestMeter(t *testing.T, accountID string, total, used int64) (*token.Meter, *token.MemoryStore) {
	t.Helper()
	store := token.NewMemoryStore()
	store.Put(model.TokenAccount{ID: accountID, TotalTokens: total, UsedTokens: used})
	return token.NewMeter(store, zerolog.Nop()), store
}

func newTranscribeService(storage *fakeStorage, stt *fakeSTT, splitter *fakeSplitter, meter *token.Meter, threshold int64) *TranscribeService {
	return NewTranscribeService(storage, stt, splitter, meter,
		&config.PipelineConfig{SizeThresholdBytes: threshold, ChunkConcurrency: 4},
		&config.TokensConfig{TranscribeEstimate: 10},
		zerolog.Nop(),
	)
}

func usedTokens(t *testing.T, store *token.MemoryStore, accountID string) int64 {
	t.Helper()
	acct, err := store.Get(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acct.UsedTokens
}

func TestTranscribeSmallFileSingleCall(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/a.mp3"] = []byte("tiny")
	stt := &fakeSTT{byName: map[string]string{"source.mp3": "  hello world  "}}
	meter, store := newTestMeter(t, "acct", 1000, 0)

	svc := newTranscribeService(storage, stt, &fakeSplitter{}, meter, 1024)

	got, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/a.mp3", Duration: 60, AccountID: "acct",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello world" {
		t.Errorf("transcript = %q, want %q", got, "hello world")
	}
	if len(stt.calls) != 1 {
		t.Errorf("stt called %d times, want 1", len(stt.calls))
	}
	if used := usedTokens(t, store, "acct"); used != token.Count("hello world") {
		t.Errorf("used tokens = %d, want %d", used, token.Count("hello world"))
	}
}

func TestTranscribeChunkedMergesInOrder(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/big.mp3"] = []byte(strings.Repeat("x", 100))
	stt := &fakeSTT{
		byName: map[string]string{
			"chunk_000.mp3": "first part",
			"chunk_001.mp3": "second part",
			"chunk_002.mp3": "third part",
		},
		// Completion order is reversed; merge order must not be.
		delays: map[string]time.Duration{
			"chunk_000.mp3": 30 * time.Millisecond,
			"chunk_001.mp3": 15 * time.Millisecond,
		},
	}
	meter, store := newTestMeter(t, "acct", 1000, 0)

	svc := newTranscribeService(storage, stt, &fakeSplitter{chunks: 3}, meter, 40)

	got, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/big.mp3", Duration: 300, AccountID: "acct",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := "first part second part third part"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
	if used := usedTokens(t, store, "acct"); used != token.Count(want) {
		t.Errorf("used tokens = %d, want %d", used, token.Count(want))
	}
}

func TestTranscribeSkipsFailedChunks(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/big.mp3"] = []byte(strings.Repeat("x", 100))
	stt := &fakeSTT{
		byName: map[string]string{
			"chunk_000.mp3": "first",
			// chunk_001 has no transcript and fails
			"chunk_002.mp3": "third",
		},
	}
	meter, _ := newTestMeter(t, "acct", 1000, 0)

	svc := newTranscribeService(storage, stt, &fakeSplitter{chunks: 3}, meter, 40)

	got, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/big.mp3", Duration: 300, AccountID: "acct",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "first third" {
		t.Errorf("transcript = %q, want %q", got, "first third")
	}
}

func TestTranscribeAllChunksFailed(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/big.mp3"] = []byte(strings.Repeat("x", 100))
	stt := &fakeSTT{failAll: true}
	meter, store := newTestMeter(t, "acct", 1000, 0)

	svc := newTranscribeService(storage, stt, &fakeSplitter{chunks: 3}, meter, 40)

	_, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/big.mp3", Duration: 300, AccountID: "acct",
	})
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
	if used := usedTokens(t, store, "acct"); used != 0 {
		t.Errorf("used tokens = %d, want 0 after total failure", used)
	}
}

func TestTranscribeFallsBackToByteSplit(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/big.mp3"] = []byte(strings.Repeat("x", 100))
	stt := &fakeSTT{
		byName: map[string]string{
			"block_000.mp3": "alpha",
			"block_001.mp3": "beta",
		},
	}
	meter, _ := newTestMeter(t, "acct", 1000, 0)

	splitter := &fakeSplitter{chunks: 2, durationErr: errors.New("decoder missing")}
	svc := newTranscribeService(storage, stt, splitter, meter, 40)

	got, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/big.mp3", Duration: 300, AccountID: "acct",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "alpha beta" {
		t.Errorf("transcript = %q, want %q", got, "alpha beta")
	}
}

func TestTranscribeInsufficientBalance(t *testing.T) {
	storage := newFakeStorage()
	storage.objects["media/a.mp3"] = []byte("tiny")
	stt := &fakeSTT{byName: map[string]string{"source.mp3": "hello"}}
	meter, _ := newTestMeter(t, "acct", 10, 5)

	svc := newTranscribeService(storage, stt, &fakeSplitter{}, meter, 1024)

	_, err := svc.Transcribe(context.Background(), &model.MediaJob{
		MediaKey: "media/a.mp3", Duration: 60, AccountID: "acct",
	})
	var insufficient *token.InsufficientTokensError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if insufficient.Required != 10 || insufficient.Available != 5 {
		t.Errorf("error = %+v, want required 10 available 5", insufficient)
	}
	if len(stt.calls) != 0 {
		t.Errorf("stt called %d times, want 0 before admission", len(stt.calls))
	}
}

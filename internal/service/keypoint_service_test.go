package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/config"
	"github.com/coeus-solutions/api-podcast/internal/token"
)

type fakeLLM struct {
	content    string
	usage      int64
	err        error
	lastPrompt string
}

func (f *fakeLLM) ChatCompletion(ctx context.Context, system, user string) (*client.Completion, error) {
	f.lastPrompt = user
	if f.err != nil {
		return nil, f.err
	}
	return &client.Completion{Content: f.content, TotalTokens: f.usage}, nil
}

func newKeyPointService(llm *fakeLLM, meter *token.Meter, debitOnParseFailure bool) *KeyPointService {
	return NewKeyPointService(llm, meter,
		&config.PipelineConfig{DebitOnParseFailure: debitOnParseFailure},
		&config.TokensConfig{ExtractEstimate: 10},
		zerolog.Nop(),
	)
}

func TestExtractSuccess(t *testing.T) {
	llm := &fakeLLM{
		content: `Here are the key points:
[
  {"content": "opening discussion", "start_time": 0, "end_time": 25},
  {"content": "closing thoughts", "start_time": "40.5", "end_time": 65}
]`,
		usage: 120,
	}
	meter, store := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	segments, err := svc.Extract(context.Background(), "transcript text", 100, "acct")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segments), segments)
	}
	if segments[1].StartTime != 40.5 {
		t.Errorf("string timestamp not coerced: start = %v, want 40.5", segments[1].StartTime)
	}
	if used := usedTokens(t, store, "acct"); used != 120 {
		t.Errorf("used tokens = %d, want reported usage 120", used)
	}
}

func TestExtractBackendFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("503 service unavailable")}
	meter, store := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	_, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	if !errors.Is(err, ErrExtractionBackendFailed) {
		t.Fatalf("err = %v, want ErrExtractionBackendFailed", err)
	}
	if used := usedTokens(t, store, "acct"); used != 0 {
		t.Errorf("used tokens = %d, want 0 on backend failure", used)
	}
}

func TestExtractParseFailureDebitsUsage(t *testing.T) {
	llm := &fakeLLM{content: "I could not find any key points, sorry.", usage: 80}
	meter, store := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	_, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	if !errors.Is(err, ErrExtractionParseFailed) {
		t.Fatalf("err = %v, want ErrExtractionParseFailed", err)
	}
	if used := usedTokens(t, store, "acct"); used != 80 {
		t.Errorf("used tokens = %d, want 80 with debit-on-parse-failure", used)
	}
}

func TestExtractParseFailureWithoutDebit(t *testing.T) {
	llm := &fakeLLM{content: "not json at all", usage: 80}
	meter, store := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, false)

	_, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	if !errors.Is(err, ErrExtractionParseFailed) {
		t.Fatalf("err = %v, want ErrExtractionParseFailed", err)
	}
	if used := usedTokens(t, store, "acct"); used != 0 {
		t.Errorf("used tokens = %d, want 0 without debit-on-parse-failure", used)
	}
}

func TestExtractToleratesMalformedElements(t *testing.T) {
	llm := &fakeLLM{
		content: `[
  {"content": "good one", "start_time": 0, "end_time": 25},
  {"content": "bad times", "start_time": "noon", "end_time": "later"},
  {"start_time": 50, "end_time": 70},
  {"content": "also good", "start_time": 50, "end_time": 70}
]`,
		usage: 50,
	}
	meter, _ := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	segments, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segments), segments)
	}
	if segments[0].Content != "good one" || segments[1].Content != "also good" {
		t.Errorf("unexpected contents: %+v", segments)
	}
}

func TestExtractEmptyArrayIsNotAnError(t *testing.T) {
	llm := &fakeLLM{content: "[]", usage: 20}
	meter, store := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	segments, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("got %d segments, want 0", len(segments))
	}
	if used := usedTokens(t, store, "acct"); used != 20 {
		t.Errorf("used tokens = %d, want 20", used)
	}
}

func TestExtractInsufficientBalance(t *testing.T) {
	llm := &fakeLLM{content: "[]"}
	meter, _ := newTestMeter(t, "acct", 10, 5)
	svc := newKeyPointService(llm, meter, true)

	_, err := svc.Extract(context.Background(), "transcript", 100, "acct")
	var insufficient *token.InsufficientTokensError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if llm.lastPrompt != "" {
		t.Error("backend called despite failed admission check")
	}
}

func TestExtractPromptCarriesConstraints(t *testing.T) {
	llm := &fakeLLM{content: "[]"}
	meter, _ := newTestMeter(t, "acct", 1000, 0)
	svc := newKeyPointService(llm, meter, true)

	if _, err := svc.Extract(context.Background(), "the transcript body", 321.5, "acct"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"321.5", "between 15 and 30", "at least 5 seconds", "the transcript body"} {
		if !strings.Contains(llm.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtractJSONArrayTrimsFences(t *testing.T) {
	in := "```json\n[{\"content\": \"a\"}]\n```"
	got := extractJSONArray(in)
	if got != `[{"content": "a"}]` {
		t.Errorf("extractJSONArray = %q", got)
	}
}

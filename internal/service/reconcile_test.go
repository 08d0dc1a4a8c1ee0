package service

import (
	"testing"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

func candidate(content string, start, end float64) model.KeyPointCandidate {
	s := model.Seconds(start)
	e := model.Seconds(end)
	return model.KeyPointCandidate{Content: &content, StartTime: &s, EndTime: &e}
}

func TestReconcileOverlappingCandidates(t *testing.T) {
	candidates := []model.KeyPointCandidate{
		candidate("intro", 0, 40),
		candidate("middle", 10, 25),
		candidate("outro", 50, 62),
	}

	got := Reconcile(candidates, 100)

	want := []model.KeyPointSegment{
		{Content: "intro", StartTime: 0, EndTime: 30},
		{Content: "outro", StartTime: 35, EndTime: 62},
	}

	if len(got) != len(want) {
		t.Fatalf("got %d segments, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReconcileValidSequenceUnchanged(t *testing.T) {
	candidates := []model.KeyPointCandidate{
		candidate("a", 0, 20),
		candidate("b", 30, 55),
		candidate("c", 60, 90),
	}

	got := Reconcile(candidates, 120)
	if len(got) != 3 {
		t.Fatalf("got %d segments, want 3", len(got))
	}
	for i, c := range candidates {
		if got[i].StartTime != float64(*c.StartTime) || got[i].EndTime != float64(*c.EndTime) {
			t.Errorf("segment %d = [%v,%v], want [%v,%v]",
				i, got[i].StartTime, got[i].EndTime, *c.StartTime, *c.EndTime)
		}
	}
}

func TestReconcileInvariants(t *testing.T) {
	candidates := []model.KeyPointCandidate{
		candidate("a", -5, 200),
		candidate("b", 3, 8),
		candidate("c", 40, 41),
		candidate("d", 90, 300),
		candidate("e", 95, 130),
	}
	duration := 100.0

	got := Reconcile(candidates, duration)

	lastEnd := -float64(SegmentGapSeconds)
	for i, seg := range got {
		length := seg.EndTime - seg.StartTime
		if length < MinSegmentSeconds || length > MaxSegmentSeconds {
			t.Errorf("segment %d length %v outside [%d,%d]", i, length, MinSegmentSeconds, MaxSegmentSeconds)
		}
		if seg.StartTime < 0 || seg.EndTime > duration {
			t.Errorf("segment %d [%v,%v] outside media bounds", i, seg.StartTime, seg.EndTime)
		}
		if seg.StartTime < lastEnd+SegmentGapSeconds {
			t.Errorf("segment %d start %v violates gap after %v", i, seg.StartTime, lastEnd)
		}
		lastEnd = seg.EndTime
	}
}

func TestReconcileIdempotent(t *testing.T) {
	candidates := []model.KeyPointCandidate{
		candidate("a", 2, 95),
		candidate("b", 20, 33),
		candidate("c", 60, 100),
	}

	first := Reconcile(candidates, 100)

	asCandidates := make([]model.KeyPointCandidate, len(first))
	for i, seg := range first {
		asCandidates[i] = candidate(seg.Content, seg.StartTime, seg.EndTime)
	}
	second := Reconcile(asCandidates, 100)

	if len(first) != len(second) {
		t.Fatalf("second pass returned %d segments, first returned %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("segment %d changed on second pass: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestReconcileSkipsIncompleteCandidates(t *testing.T) {
	content := "ok"
	start := model.Seconds(0)
	end := model.Seconds(20)
	empty := "   "

	candidates := []model.KeyPointCandidate{
		{},
		{Content: &content, StartTime: &start},
		{Content: &empty, StartTime: &start, EndTime: &end},
		{Content: &content, StartTime: &start, EndTime: &end},
	}

	got := Reconcile(candidates, 60)
	if len(got) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(got), got)
	}
	if got[0].Content != "ok" {
		t.Errorf("content = %q, want %q", got[0].Content, "ok")
	}
}

func TestReconcileDropWithoutAdvancingCursor(t *testing.T) {
	// The unusable middle candidate must not consume the gap budget of
	// the one after it.
	candidates := []model.KeyPointCandidate{
		candidate("a", 0, 20),
		candidate("bad", 21, 24),
		candidate("b", 25, 45),
	}

	got := Reconcile(candidates, 100)
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	if got[1].StartTime != 25 || got[1].EndTime != 45 {
		t.Errorf("second segment = [%v,%v], want [25,45]", got[1].StartTime, got[1].EndTime)
	}
}

func TestReconcileEmptyInput(t *testing.T) {
	got := Reconcile(nil, 100)
	if len(got) != 0 {
		t.Fatalf("got %d segments, want 0", len(got))
	}
}

func TestReconcileShortMedia(t *testing.T) {
	// Media shorter than the minimum segment length yields nothing.
	got := Reconcile([]model.KeyPointCandidate{candidate("a", 0, 30)}, 10)
	if len(got) != 0 {
		t.Fatalf("got %d segments, want 0: %+v", len(got), got)
	}
}

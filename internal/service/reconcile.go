package service

import (
	"math"
	"strings"

	"github.com/coeus-solutions/api-podcast/internal/model"
)

// Segment timing rules. Every accepted key point is 15-30 seconds long,
// lies inside the media duration, and keeps at least a 5 second gap from
// its predecessor.
const (
	MinSegmentSeconds = 15
	MaxSegmentSeconds = 30
	SegmentGapSeconds = 5
)

// Reconcile repairs untrusted key-point candidates into a chronological,
// non-overlapping sequence of valid segments. It is a single
// left-to-right pass over the candidates in the order received: a
// running cursor tracks the end of the last accepted segment, each
// candidate's start is pushed forward to honor the gap (or pulled back
// toward the gap floor when its window is too short), and its end is
// clamped to the duration and the maximum length. Candidates that cannot
// be adjusted into a valid window are dropped without advancing the
// cursor. Deterministic given a deterministic input order; running it on
// an already-valid sequence returns the sequence unchanged.
func Reconcile(candidates []model.KeyPointCandidate, duration float64) []model.KeyPointSegment {
	segments := make([]model.KeyPointSegment, 0, len(candidates))

	// The first segment may start at 0.
	lastEnd := float64(-SegmentGapSeconds)

	for _, c := range candidates {
		if !c.Complete() {
			continue
		}

		floor := lastEnd + SegmentGapSeconds
		start := math.Max(float64(*c.StartTime), floor)
		end := math.Min(float64(*c.EndTime), duration)

		if end > start+MaxSegmentSeconds {
			end = start + MaxSegmentSeconds
		}
		if end-start < MinSegmentSeconds {
			// Too short where it stands: pull the start back toward the
			// floor, preserving the proposed end.
			start = math.Max(floor, end-MaxSegmentSeconds)
		}
		if end-start < MinSegmentSeconds {
			continue
		}

		segments = append(segments, model.KeyPointSegment{
			Content:   strings.TrimSpace(*c.Content),
			StartTime: start,
			EndTime:   end,
		})
		lastEnd = end
	}

	return segments
}

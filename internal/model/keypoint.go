package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Seconds is a timestamp that tolerates the ways a language model writes
// numbers: 12, 12.5, or "12.5". Anything else fails to unmarshal.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Seconds(f)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return err
	}
	*s = Seconds(f)
	return nil
}

// KeyPointCandidate is the raw, untrusted output of the extraction call.
// Fields are pointers so that missing keys are distinguishable from zero
// values; a candidate carries no invariants of its own.
type KeyPointCandidate struct {
	Content   *string  `json:"content"`
	StartTime *Seconds `json:"start_time"`
	EndTime   *Seconds `json:"end_time"`
}

// Complete reports whether all required fields were present and coercible.
func (c KeyPointCandidate) Complete() bool {
	return c.Content != nil && strings.TrimSpace(*c.Content) != "" &&
		c.StartTime != nil && c.EndTime != nil
}

// KeyPointSegment is a validated key point: its window lies inside the
// media duration, is 15-30s long, and keeps a 5s gap from its neighbors.
type KeyPointSegment struct {
	Content   string  `json:"content"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// KeyPoint pairs a validated segment with its materialized clip.
// ClipKey is empty when the clip could not be produced.
type KeyPoint struct {
	Content   string  `json:"content"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	ClipKey   string  `json:"clipKey,omitempty"`
}

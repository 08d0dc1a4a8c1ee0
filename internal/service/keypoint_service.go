package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coeus-solutions/api-podcast/internal/client"
	"github.com/coeus-solutions/api-podcast/internal/config"
	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/token"
)

// KeyPointService extracts timed key points from a transcript via the
// text-generation backend and reconciles them into valid segments.
type KeyPointService struct {
	llm      client.TextGenerator
	meter    *token.Meter
	estimate int64
	// debitOnParseFailure controls whether backend-reported usage is
	// debited when the response fails to parse. The backend consumed the
	// resources either way; defaulting to true keeps billing honest.
	debitOnParseFailure bool
	log                 zerolog.Logger
}

func NewKeyPointService(
	llm client.TextGenerator,
	meter *token.Meter,
	pipelineCfg *config.PipelineConfig,
	tokensCfg *config.TokensConfig,
	log zerolog.Logger,
) *KeyPointService {
	return &KeyPointService{
		llm:                 llm,
		meter:               meter,
		estimate:            tokensCfg.ExtractEstimate,
		debitOnParseFailure: pipelineCfg.DebitOnParseFailure,
		log:                 log,
	}
}

// Extract produces an ordered sequence of valid key-point segments from
// the transcript. An empty sequence is a valid (non-error) outcome.
func (s *KeyPointService) Extract(ctx context.Context, transcript string, duration float64, accountID string) ([]model.KeyPointSegment, error) {
	if err := s.meter.CheckBalance(ctx, accountID, s.estimate); err != nil {
		return nil, err
	}

	resp, err := s.llm.ChatCompletion(ctx, extractSystemPrompt, buildExtractPrompt(transcript, duration))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionBackendFailed, err)
	}

	candidates, perr := parseCandidates(resp.Content)
	if perr != nil {
		if s.debitOnParseFailure {
			if derr := s.meter.Debit(ctx, accountID, resp.TotalTokens); derr != nil {
				s.log.Error().Err(derr).Str("account", accountID).Msg("failed to debit usage for unparseable response")
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrExtractionParseFailed, perr)
	}

	if err := s.meter.Debit(ctx, accountID, resp.TotalTokens); err != nil {
		return nil, err
	}

	segments := Reconcile(candidates, duration)
	s.log.Info().
		Int("candidates", len(candidates)).
		Int("segments", len(segments)).
		Int64("tokens", resp.TotalTokens).
		Msg("key points extracted")

	return segments, nil
}

const extractSystemPrompt = `You are an assistant that extracts key points from podcast transcripts. You respond with a JSON array only: no prose, no explanation, no markdown.`

// buildExtractPrompt encodes the segment rules as hard constraints, not
// hints. The response contract is a bare JSON array of
// {content, start_time, end_time} objects.
func buildExtractPrompt(transcript string, duration float64) string {
	return fmt.Sprintf(`Analyze this podcast transcript and extract the key points.

Hard constraints, all mandatory:
1. Respond with ONLY a JSON array of objects of the form {"content": "...", "start_time": <seconds>, "end_time": <seconds>}. No text before or after the array.
2. All timestamps are seconds within [0, %.1f]; the media is %.1f seconds long.
3. Every key point lasts between 15 and 30 seconds inclusive (end_time - start_time).
4. Key points are in chronological order, never overlap, and consecutive key points are separated by at least 5 seconds (next start_time >= previous end_time + 5).

Transcript:
%s`, duration, duration, transcript)
}

// parseCandidates parses the raw model output as a JSON array of
// candidates. The top level must be an array or the whole response is
// rejected; a malformed element only invalidates that element.
func parseCandidates(raw string) ([]model.KeyPointCandidate, error) {
	raw = extractJSONArray(raw)

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %v", err)
	}

	candidates := make([]model.KeyPointCandidate, len(elems))
	for i, elem := range elems {
		// A bad element stays zero-valued and is skipped at reconciliation.
		_ = json.Unmarshal(elem, &candidates[i])
	}
	return candidates, nil
}

// extractJSONArray trims a response to its outermost JSON array, which
// tolerates models that wrap the array in code fences.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

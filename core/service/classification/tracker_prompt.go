package classification

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"reply_tracker/core/domain"
	"reply_tracker/pkg/apperr"
)

const promptTemplate = `You review lender replies to small-business loan submissions.
Decide whether the reply below approves the submission, declines it, or neither.

Reply:
"""
%s
"""

Respond with JSON only. No prose, no code fences. Use exactly this shape:
{
  "classification": "APPROVAL" | "DECLINE" | "NEUTRAL",
  "offer": "offer terms, required for APPROVAL",
  "decline_reason": "reason, required for DECLINE",
  "lender_name": %s
}
Omit "offer" unless APPROVAL and "decline_reason" unless DECLINE.`

// BuildPrompt renders the classification request for one reply.
func BuildPrompt(content, lender string) string {
	quoted, err := json.Marshal(lender)
	if err != nil {
		quoted = []byte(`"` + domain.UnknownLender + `"`)
	}
	return fmt.Sprintf(promptTemplate, content, quoted)
}

var fencePattern = regexp.MustCompile("(?i)```(?:json)?")

// CleanOracleOutput removes markdown code fences and stray backticks.
func CleanOracleOutput(raw string) string {
	s := fencePattern.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	return strings.TrimSpace(s)
}

// ParsedOutput is a validated oracle answer.
type ParsedOutput struct {
	Result *domain.ClassificationResult
	// RawLabel is the label as sent by the oracle.
	RawLabel string
	// KnownLabel is false when RawLabel was mapped to NEUTRAL.
	KnownLabel bool
}

type oracleAnswer struct {
	Classification *string `json:"classification"`
	Offer          *string `json:"offer"`
	DeclineReason  *string `json:"decline_reason"`
	LenderName     string  `json:"lender_name"`
}

// ParseOracleOutput cleans and strictly parses raw. Failures are
// apperr PARSE_FAILED errors carrying the cleaned text.
func ParseOracleOutput(raw string) (*ParsedOutput, error) {
	cleaned := CleanOracleOutput(raw)
	if cleaned == "" {
		return nil, apperr.ParseFailed("empty oracle output", nil)
	}

	var answer oracleAnswer
	if err := json.Unmarshal([]byte(cleaned), &answer); err != nil {
		return nil, apperr.ParseFailed("invalid JSON", err).WithDetail("output", cleaned)
	}
	if answer.Classification == nil || strings.TrimSpace(*answer.Classification) == "" {
		return nil, apperr.ParseFailed("missing classification", domain.ErrMissingClassification).
			WithDetail("output", cleaned)
	}

	label, known := domain.NormalizeLabel(*answer.Classification)
	result := &domain.ClassificationResult{
		Classification: label,
		Offer:          answer.Offer,
		DeclineReason:  answer.DeclineReason,
		LenderName:     answer.LenderName,
	}
	if err := result.Validate(); err != nil {
		return nil, apperr.ParseFailed("invalid classification", err).WithDetail("output", cleaned)
	}

	return &ParsedOutput{
		Result:     result,
		RawLabel:   strings.TrimSpace(*answer.Classification),
		KnownLabel: known,
	}, nil
}

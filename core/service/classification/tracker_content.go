package classification

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"reply_tracker/core/domain"
)

// ContentSource records where the classified text came from.
type ContentSource string

const (
	SourceReplyBody    ContentSource = "reply_body"
	SourceReplyHistory ContentSource = "reply_history"
)

// DefaultGenericPhrases are bare acknowledgements that carry no decision.
func DefaultGenericPhrases() []string {
	return []string{
		"thanks",
		"thank you",
		"thx",
		"received",
		"noted",
		"got it",
		"ok",
		"okay",
		"will review",
		"we will review",
	}
}

// ContentRules decides which reply text is worth sending to the oracle.
// Without Strict only blank text and the unreadable-body placeholder are
// rejected.
type ContentRules struct {
	Strict         bool
	MinLength      int
	GenericPhrases []string
}

// Resolve picks reply_body when usable, else the newest history body that is
// usable and differs from reply_body.
func (r ContentRules) Resolve(sub *domain.Submission) (string, ContentSource, bool) {
	primary := strings.TrimSpace(sub.ReplyBodyText())
	if r.Usable(primary) {
		return primary, SourceReplyBody, true
	}
	for i := len(sub.ReplyHistory) - 1; i >= 0; i-- {
		body := strings.TrimSpace(sub.ReplyHistory[i].Body)
		if body == primary {
			continue
		}
		if r.Usable(body) {
			return body, SourceReplyHistory, true
		}
	}
	return "", "", false
}

// SkipReason explains why Resolve found nothing.
func (r ContentRules) SkipReason(sub *domain.Submission) string {
	primary := strings.TrimSpace(sub.ReplyBodyText())
	if primary == "" || primary == domain.NoReadableBody {
		return "Empty reply_body and no usable reply_history"
	}
	return "Reply is too short or a generic acknowledgement"
}

// Usable reports whether text can be classified.
func (r ContentRules) Usable(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || text == domain.NoReadableBody {
		return false
	}
	if !r.Strict {
		return true
	}
	if r.MinLength > 0 && utf8.RuneCountInString(text) < r.MinLength {
		return false
	}
	normalized := normalizePhrase(text)
	for _, phrase := range r.GenericPhrases {
		if normalized == normalizePhrase(phrase) {
			return false
		}
	}
	return true
}

// normalizePhrase lowercases, collapses whitespace and drops surrounding
// punctuation so "Thanks!!" compares equal to "thanks".
func normalizePhrase(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
}

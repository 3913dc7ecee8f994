package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// ReplyStatusReplied is the only non-null reply_status value.
	ReplyStatusReplied = "Replied"

	// DefaultReplyBodyLimit caps reply_body and each history entry body.
	DefaultReplyBodyLimit = 2000

	// UnknownLender labels rows without a lender identity.
	UnknownLender = "Unknown"

	// NoReadableBody stands in for a reply with no extractable text.
	NoReadableBody = "[No readable text body]"
)

// Submission is one outbound loan-referral row.
type Submission struct {
	ID              int64     `json:"id"`
	MessageID       string    `json:"message_id"`
	BusinessName    string    `json:"business_name"`
	LenderName      string    `json:"lender_name,omitempty"`
	LenderNames     string    `json:"lender_names,omitempty"`
	RecipientEmails []string  `json:"recipient_emails,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	ReplyStatus  *string      `json:"reply_status"`
	ReplyBody    *string      `json:"reply_body"`
	ReplyDate    *time.Time   `json:"reply_date"`
	ReplyHistory ReplyHistory `json:"reply_history"`

	Classified       bool `json:"classified"`
	ClassifyAttempts int  `json:"classify_attempts"`
}

// LenderKey is the identity used for sender allow-list lookups.
func (s *Submission) LenderKey() string {
	if k := strings.TrimSpace(s.LenderName); k != "" {
		return k
	}
	return strings.TrimSpace(s.LenderNames)
}

// LenderLabel is the lender text written to outcome rows and prompts.
func (s *Submission) LenderLabel() string {
	if k := s.LenderKey(); k != "" {
		return k
	}
	return UnknownLender
}

// HasReply reports whether any of the reply fields has been written.
func (s *Submission) HasReply() bool {
	return s.ReplyStatus != nil || s.ReplyBody != nil || s.ReplyDate != nil
}

// ReplyBodyText returns reply_body or "" when null.
func (s *Submission) ReplyBodyText() string {
	if s.ReplyBody == nil {
		return ""
	}
	return *s.ReplyBody
}

// ReplyEntry is one inbound message attributed to a submission.
type ReplyEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	// MessageID is the mailbox message id, used to keep re-matching idempotent.
	MessageID string `json:"message_id,omitempty"`
}

// ReplyHistory is append-only, oldest first.
type ReplyHistory []ReplyEntry

// Contains reports whether the mailbox message is already recorded.
func (h ReplyHistory) Contains(mailboxID string) bool {
	if mailboxID == "" {
		return false
	}
	for _, e := range h {
		if e.MessageID == mailboxID {
			return true
		}
	}
	return false
}

// Append returns a new history with e at the end. It returns false and the
// unchanged history when e's mailbox message is already present.
func (h ReplyHistory) Append(e ReplyEntry) (ReplyHistory, bool) {
	if h.Contains(e.MessageID) {
		return h, false
	}
	out := make(ReplyHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, e), true
}

// Latest returns the newest entry.
func (h ReplyHistory) Latest() (ReplyEntry, bool) {
	if len(h) == 0 {
		return ReplyEntry{}, false
	}
	return h[len(h)-1], true
}

// ReplyUpdate is the write shared by both matchers.
type ReplyUpdate struct {
	Status  string
	Body    string
	Date    time.Time
	History ReplyHistory
}

// NewReplyUpdate builds the update that records entry as the latest reply.
func NewReplyUpdate(history ReplyHistory, entry ReplyEntry) ReplyUpdate {
	return ReplyUpdate{
		Status:  ReplyStatusReplied,
		Body:    entry.Body,
		Date:    entry.Timestamp,
		History: history,
	}
}

// SanitizeText makes mailbox text storable in TEXT and JSONB columns:
// invalid UTF-8 sequences become U+FFFD and NUL bytes are dropped.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// Truncate cuts s to at most limit runes. limit <= 0 means no limit.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

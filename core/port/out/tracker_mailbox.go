package out

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Header names read by the matchers.
const (
	HeaderInReplyTo = "In-Reply-To"
	HeaderSubject   = "Subject"
	HeaderFrom      = "From"
	HeaderDate      = "Date"
)

// ReplyHeaders is the metadata set fetched for every listed message.
var ReplyHeaders = []string{HeaderInReplyTo, HeaderSubject, HeaderFrom, HeaderDate}

// MailboxGateway is the mailbox the pipeline reads replies from.
type MailboxGateway interface {
	ListRecent(ctx context.Context, query ListQuery) ([]MessageRef, error)
	GetMetadata(ctx context.Context, id string, headers ...string) (*MessageMeta, error)
	GetFull(ctx context.Context, id string) (*FullMessage, error)
}

// ListQuery selects recent messages.
type ListQuery struct {
	NewerThanDays  int
	ExcludeFolders []string
	MaxResults     int64
}

// DefaultListQuery is the last 7 days excluding spam and trash, 100 messages.
func DefaultListQuery() ListQuery {
	return ListQuery{
		NewerThanDays:  7,
		ExcludeFolders: []string{"spam", "trash"},
		MaxResults:     100,
	}
}

// MessageRef is a listed message.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MessageHeaders holds header values keyed case-insensitively.
type MessageHeaders map[string]string

// NewMessageHeaders builds headers from name/value pairs. The first value
// of a repeated header wins.
func NewMessageHeaders(pairs ...[2]string) MessageHeaders {
	h := make(MessageHeaders, len(pairs))
	for _, p := range pairs {
		h.Set(p[0], p[1])
	}
	return h
}

func (h MessageHeaders) Set(name, value string) {
	key := strings.ToLower(name)
	if _, ok := h[key]; !ok {
		h[key] = value
	}
}

func (h MessageHeaders) Get(name string) string {
	return strings.TrimSpace(h[strings.ToLower(name)])
}

// MessageMeta is a message's header metadata.
type MessageMeta struct {
	ID           string
	ThreadID     string
	Headers      MessageHeaders
	InternalDate time.Time
}

// FullMessage is a message with its MIME payload tree.
type FullMessage struct {
	MessageMeta
	Payload *MessagePart
}

// MessagePart is one node of the MIME tree. Leaves carry base64url data.
type MessagePart struct {
	MimeType string
	Body     *MessagePartBody
	Parts    []*MessagePart
}

type MessagePartBody struct {
	Data string
}

// MailboxErrorCode classifies mailbox failures.
type MailboxErrorCode string

const (
	MailboxErrAuth         MailboxErrorCode = "auth_error"
	MailboxErrTokenExpired MailboxErrorCode = "token_expired"
	MailboxErrRateLimit    MailboxErrorCode = "rate_limit"
	MailboxErrNotFound     MailboxErrorCode = "not_found"
	MailboxErrServer       MailboxErrorCode = "server_error"
	MailboxErrInvalidInput MailboxErrorCode = "invalid_input"
)

// MailboxError represents a mailbox provider error.
type MailboxError struct {
	Provider  string
	Code      MailboxErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *MailboxError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *MailboxError) Unwrap() error {
	return e.Err
}

func NewMailboxError(provider string, code MailboxErrorCode, message string, err error, retryable bool) *MailboxError {
	return &MailboxError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsNotFound reports a message that vanished between listing and fetch.
func IsNotFound(err error) bool {
	var me *MailboxError
	return errors.As(err, &me) && me.Code == MailboxErrNotFound
}

// Package reply correlates inbound mailbox replies with loan submissions.
package reply

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
)

const (
	StageThread    = in.StageThread
	StageHeuristic = in.StageHeuristic

	// DefaultCutoffSkew tolerates clock skew between the mailbox and the store.
	DefaultCutoffSkew = 30 * time.Second
)

// Config tunes both matchers.
type Config struct {
	Query      out.ListQuery
	BodyLimit  int
	CutoffSkew time.Duration
}

func DefaultConfig() Config {
	return Config{
		Query:      out.DefaultListQuery(),
		BodyLimit:  domain.DefaultReplyBodyLimit,
		CutoffSkew: DefaultCutoffSkew,
	}
}

// Service runs the thread and heuristic matchers.
type Service struct {
	mailbox     out.MailboxGateway
	submissions out.SubmissionRepository
	strategy    Strategy
	cfg         Config
	now         func() time.Time
}

var _ in.ReplyMatcher = (*Service)(nil)

func NewService(mailbox out.MailboxGateway, submissions out.SubmissionRepository, strategy Strategy, cfg Config) *Service {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = domain.DefaultReplyBodyLimit
	}
	if cfg.Query.MaxResults <= 0 {
		cfg.Query = out.DefaultListQuery()
	}
	return &Service{
		mailbox:     mailbox,
		submissions: submissions,
		strategy:    strategy,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *Service) ready() error {
	if s.mailbox == nil {
		return apperr.ConfigError("mailbox is not configured")
	}
	if s.submissions == nil {
		return apperr.ConfigError("submission store is not configured")
	}
	return nil
}

// buildEntry normalises a matched message into a history entry.
func (s *Service) buildEntry(meta *out.MessageMeta, body string) domain.ReplyEntry {
	return domain.ReplyEntry{
		Timestamp: s.replyTimestamp(meta),
		Sender:    domain.SanitizeText(meta.Headers.Get(out.HeaderFrom)),
		Subject:   domain.SanitizeText(meta.Headers.Get(out.HeaderSubject)),
		Body:      domain.Truncate(body, s.cfg.BodyLimit),
		MessageID: meta.ID,
	}
}

// replyTimestamp prefers the Date header, then the mailbox internal date.
func (s *Service) replyTimestamp(meta *out.MessageMeta) time.Time {
	if raw := meta.Headers.Get(out.HeaderDate); raw != "" {
		if t, err := mail.ParseDate(raw); err == nil {
			return t.UTC()
		}
	}
	if !meta.InternalDate.IsZero() {
		return meta.InternalDate.UTC()
	}
	return s.now().UTC()
}

// recordReply appends entry to the submission's history and writes the
// reply fields. It returns false when the message was already recorded.
func (s *Service) recordReply(ctx context.Context, sub *domain.Submission, entry domain.ReplyEntry) (bool, error) {
	history, added := sub.ReplyHistory.Append(entry)
	if !added {
		return false, nil
	}

	update := domain.NewReplyUpdate(history, entry)
	if err := s.submissions.UpdateReply(ctx, sub.ID, update); err != nil {
		return false, fmt.Errorf("update reply for submission %d: %w", sub.ID, err)
	}

	status := update.Status
	body := update.Body
	date := update.Date
	sub.ReplyStatus = &status
	sub.ReplyBody = &body
	sub.ReplyDate = &date
	sub.ReplyHistory = history
	return true, nil
}

// mailboxFailure marks a mailbox error that aborts the batch. The original
// MailboxError stays in the chain.
func mailboxFailure(op string, err error) error {
	return apperr.ExternalError("mailbox", fmt.Errorf("%s: %w", op, err))
}

// fetchFull returns nil, nil when the message disappeared.
func (s *Service) fetchFull(ctx context.Context, id string) (*out.FullMessage, error) {
	full, err := s.mailbox.GetFull(ctx, id)
	if err != nil {
		if out.IsNotFound(err) {
			return nil, nil
		}
		return nil, mailboxFailure(fmt.Sprintf("get message %s", id), err)
	}
	return full, nil
}

// fetchMeta returns nil, nil when the message disappeared.
func (s *Service) fetchMeta(ctx context.Context, id string) (*out.MessageMeta, error) {
	meta, err := s.mailbox.GetMetadata(ctx, id, out.ReplyHeaders...)
	if err != nil {
		if out.IsNotFound(err) {
			return nil, nil
		}
		return nil, mailboxFailure(fmt.Sprintf("get metadata for %s", id), err)
	}
	return meta, nil
}

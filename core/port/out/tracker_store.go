package out

import (
	"context"
	"time"

	"reply_tracker/core/domain"
)

// SubmissionFilter narrows FindSubmissions. Zero fields do not filter.
type SubmissionFilter struct {
	MessageID string
	// Unreplied keeps rows whose reply_status, reply_body and reply_date are
	// all null.
	Unreplied bool
	// Replied keeps rows with reply_status set.
	Replied      bool
	Unclassified bool
	UpdatedSince time.Time
	Limit        uint64
}

// SubmissionRepository reads and writes submission rows.
type SubmissionRepository interface {
	FindSubmissions(ctx context.Context, filter SubmissionFilter) ([]*domain.Submission, error)
	UpdateReply(ctx context.Context, id int64, update domain.ReplyUpdate) error
	MarkClassified(ctx context.Context, id int64) error
	// IncrementClassifyAttempts bumps the parse-failure counter and returns
	// the new value.
	IncrementClassifyAttempts(ctx context.Context, id int64) (int, error)
}

// OutcomeRepository persists classification outcomes and the audit trail.
type OutcomeRepository interface {
	// InsertDeclineLog returns false when a row for the submission already
	// exists.
	InsertDeclineLog(ctx context.Context, row *domain.DeclineLogRow) (bool, error)
	InsertClassifierLog(ctx context.Context, entry *domain.ClassifierLogEntry) error
	RecentClassifierLogs(ctx context.Context, limit int) ([]*domain.ClassifierLogEntry, error)
}

// LenderContactRepository lists lender sender addresses kept in the store.
type LenderContactRepository interface {
	ListContacts(ctx context.Context) (map[string][]string, error)
}

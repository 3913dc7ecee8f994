package persistence

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/out"
)

// Querier is the pgx surface used by the submission adapter. *pgxpool.Pool
// and pgxmock pools both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var submissionColumns = []string{
	"id",
	"message_id",
	"business_name",
	"lender_name",
	"lender_names",
	"recipient_emails",
	"created_at",
	"updated_at",
	"reply_status",
	"reply_body",
	"reply_date",
	"reply_history",
	"classified",
	"classify_attempts",
}

// SubmissionAdapter implements out.SubmissionRepository on PostgreSQL.
type SubmissionAdapter struct {
	db    Querier
	table string
}

var _ out.SubmissionRepository = (*SubmissionAdapter)(nil)

func NewSubmissionAdapter(db Querier, table string) *SubmissionAdapter {
	return &SubmissionAdapter{db: db, table: quoteTable(table)}
}

type submissionRow struct {
	ID               int64
	MessageID        pgtype.Text
	BusinessName     pgtype.Text
	LenderName       pgtype.Text
	LenderNames      pgtype.Text
	RecipientEmails  []string
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
	ReplyStatus      pgtype.Text
	ReplyBody        pgtype.Text
	ReplyDate        pgtype.Timestamptz
	ReplyHistory     []byte
	Classified       pgtype.Bool
	ClassifyAttempts int32
}

func (r *submissionRow) scanTargets() []any {
	return []any{
		&r.ID,
		&r.MessageID,
		&r.BusinessName,
		&r.LenderName,
		&r.LenderNames,
		&r.RecipientEmails,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.ReplyStatus,
		&r.ReplyBody,
		&r.ReplyDate,
		&r.ReplyHistory,
		&r.Classified,
		&r.ClassifyAttempts,
	}
}

func (r *submissionRow) toDomain() (*domain.Submission, error) {
	sub := &domain.Submission{
		ID:               r.ID,
		MessageID:        r.MessageID.String,
		BusinessName:     r.BusinessName.String,
		LenderName:       r.LenderName.String,
		LenderNames:      r.LenderNames.String,
		RecipientEmails:  r.RecipientEmails,
		Classified:       r.Classified.Valid && r.Classified.Bool,
		ClassifyAttempts: int(r.ClassifyAttempts),
	}
	if r.CreatedAt.Valid {
		sub.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		sub.UpdatedAt = r.UpdatedAt.Time
	}
	if r.ReplyStatus.Valid {
		status := r.ReplyStatus.String
		sub.ReplyStatus = &status
	}
	if r.ReplyBody.Valid {
		body := r.ReplyBody.String
		sub.ReplyBody = &body
	}
	if r.ReplyDate.Valid {
		date := r.ReplyDate.Time
		sub.ReplyDate = &date
	}
	if len(r.ReplyHistory) > 0 && string(r.ReplyHistory) != "null" {
		if err := json.Unmarshal(r.ReplyHistory, &sub.ReplyHistory); err != nil {
			return nil, fmt.Errorf("decode reply_history for submission %d: %w", r.ID, err)
		}
	}
	return sub, nil
}

// FindSubmissions returns rows matching filter ordered by id.
func (a *SubmissionAdapter) FindSubmissions(ctx context.Context, filter out.SubmissionFilter) ([]*domain.Submission, error) {
	query := psql.Select(submissionColumns...).From(a.table)
	if filter.MessageID != "" {
		query = query.Where(squirrel.Eq{"message_id": filter.MessageID})
	}
	if filter.Unreplied {
		query = query.Where("reply_status IS NULL AND reply_body IS NULL AND reply_date IS NULL")
	}
	if filter.Replied {
		query = query.Where("reply_status IS NOT NULL")
	}
	if filter.Unclassified {
		query = query.Where("(classified IS NULL OR classified = FALSE)")
	}
	if !filter.UpdatedSince.IsZero() {
		query = query.Where(squirrel.GtOrEq{"updated_at": filter.UpdatedSince})
	}
	query = query.OrderBy("id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrapDBError("build submission query", err)
	}

	rows, err := a.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBError("find submissions", err)
	}
	defer rows.Close()

	var subs []*domain.Submission
	for rows.Next() {
		var row submissionRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, wrapDBError("scan submission", err)
		}
		sub, err := row.toDomain()
		if err != nil {
			return nil, wrapDBError("decode submission", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate submissions", err)
	}
	return subs, nil
}

// UpdateReply writes the reply fields and the full history in one statement.
func (a *SubmissionAdapter) UpdateReply(ctx context.Context, id int64, update domain.ReplyUpdate) error {
	history, err := json.Marshal(update.History)
	if err != nil {
		return fmt.Errorf("encode reply_history: %w", err)
	}

	sql, args, err := psql.Update(a.table).
		Set("reply_status", update.Status).
		Set("reply_body", update.Body).
		Set("reply_date", update.Date).
		Set("reply_history", squirrel.Expr("?::jsonb", string(history))).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return wrapDBError("build reply update", err)
	}
	return a.execOne(ctx, "update reply", sql, args...)
}

// MarkClassified sets classified = true.
func (a *SubmissionAdapter) MarkClassified(ctx context.Context, id int64) error {
	sql, args, err := psql.Update(a.table).
		Set("classified", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return wrapDBError("build classified update", err)
	}
	return a.execOne(ctx, "mark classified", sql, args...)
}

// IncrementClassifyAttempts bumps classify_attempts and returns the new value.
func (a *SubmissionAdapter) IncrementClassifyAttempts(ctx context.Context, id int64) (int, error) {
	sql, args, err := psql.Update(a.table).
		Set("classify_attempts", squirrel.Expr("COALESCE(classify_attempts, 0) + 1")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING classify_attempts").
		ToSql()
	if err != nil {
		return 0, wrapDBError("build attempts update", err)
	}

	var attempts int32
	if err := a.db.QueryRow(ctx, sql, args...).Scan(&attempts); err != nil {
		return 0, wrapDBError("increment classify attempts", err)
	}
	return int(attempts), nil
}

func (a *SubmissionAdapter) execOne(ctx context.Context, operation, sql string, args ...any) error {
	tag, err := a.db.Exec(ctx, sql, args...)
	if err != nil {
		return wrapDBError(operation, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapDBError(operation, ErrNotFound)
	}
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/out"
)

// NamedDB is the sqlx surface used by the sqlx-backed adapters. *sqlx.DB
// satisfies it.
type NamedDB interface {
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// OutcomeAdapter persists decline log rows and the classifier audit trail.
type OutcomeAdapter struct {
	db            NamedDB
	insertDecline string
	insertLog     string
	selectLogs    string
}

var _ out.OutcomeRepository = (*OutcomeAdapter)(nil)

func NewOutcomeAdapter(db NamedDB, declinesTable, logTable string) *OutcomeAdapter {
	declines := quoteTable(declinesTable)
	logs := quoteTable(logTable)
	return &OutcomeAdapter{
		db: db,
		insertDecline: fmt.Sprintf(`
			INSERT INTO %s (submission_id, business_name, lender_names, classification, offer, decline_reason, created_at)
			VALUES (:submission_id, :business_name, :lender_names, :classification, :offer, :decline_reason, :created_at)
			ON CONFLICT (submission_id) DO NOTHING`, declines),
		insertLog: fmt.Sprintf(`
			INSERT INTO %s (reply_id, type, message, data, created_at)
			VALUES (:reply_id, :type, :message, CAST(:data AS jsonb), :created_at)`, logs),
		selectLogs: fmt.Sprintf(`
			SELECT id, reply_id, type, message, data, created_at
			FROM %s
			ORDER BY created_at DESC, id DESC
			LIMIT $1`, logs),
	}
}

type declineLogParams struct {
	SubmissionID   int64          `db:"submission_id"`
	BusinessName   string         `db:"business_name"`
	LenderNames    string         `db:"lender_names"`
	Classification string         `db:"classification"`
	Offer          sql.NullString `db:"offer"`
	DeclineReason  sql.NullString `db:"decline_reason"`
	CreatedAt      time.Time      `db:"created_at"`
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// InsertDeclineLog returns false when the submission already has an outcome.
func (a *OutcomeAdapter) InsertDeclineLog(ctx context.Context, row *domain.DeclineLogRow) (bool, error) {
	params := declineLogParams{
		SubmissionID:   row.SubmissionID,
		BusinessName:   row.BusinessName,
		LenderNames:    row.LenderNames,
		Classification: string(row.Classification),
		Offer:          nullString(row.Offer),
		DeclineReason:  nullString(row.DeclineReason),
		CreatedAt:      row.CreatedAt,
	}
	res, err := a.db.NamedExecContext(ctx, a.insertDecline, params)
	if err != nil {
		return false, wrapDBError("insert decline log", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("insert decline log", err)
	}
	return n > 0, nil
}

type classifierLogParams struct {
	ReplyID   int64     `db:"reply_id"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	Data      string    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
}

// InsertClassifierLog appends one audit entry with the submission snapshot.
func (a *OutcomeAdapter) InsertClassifierLog(ctx context.Context, entry *domain.ClassifierLogEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encode classifier log data: %w", err)
	}
	params := classifierLogParams{
		ReplyID:   entry.ReplyID,
		Type:      string(entry.Type),
		Message:   entry.Message,
		Data:      string(data),
		CreatedAt: entry.CreatedAt,
	}
	if _, err := a.db.NamedExecContext(ctx, a.insertLog, params); err != nil {
		return wrapDBError("insert classifier log", err)
	}
	return nil
}

type classifierLogRow struct {
	ID        int64          `db:"id"`
	ReplyID   sql.NullInt64  `db:"reply_id"`
	Type      sql.NullString `db:"type"`
	Message   sql.NullString `db:"message"`
	Data      []byte         `db:"data"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *classifierLogRow) toDomain() *domain.ClassifierLogEntry {
	entry := &domain.ClassifierLogEntry{
		ID:        r.ID,
		ReplyID:   r.ReplyID.Int64,
		Type:      domain.ClassifierLogType(r.Type.String),
		Message:   r.Message.String,
		CreatedAt: r.CreatedAt,
	}
	if len(r.Data) > 0 {
		var sub domain.Submission
		if err := json.Unmarshal(r.Data, &sub); err == nil {
			entry.Data = &sub
		}
	}
	return entry
}

// RecentClassifierLogs returns the newest audit entries first.
func (a *OutcomeAdapter) RecentClassifierLogs(ctx context.Context, limit int) ([]*domain.ClassifierLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []classifierLogRow
	if err := a.db.SelectContext(ctx, &rows, a.selectLogs, limit); err != nil {
		return nil, wrapDBError("list classifier logs", err)
	}
	entries := make([]*domain.ClassifierLogEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

// LenderContactAdapter reads lender sender addresses from the store.
type LenderContactAdapter struct {
	db    NamedDB
	query string
}

var _ out.LenderContactRepository = (*LenderContactAdapter)(nil)

func NewLenderContactAdapter(db NamedDB, table string) *LenderContactAdapter {
	return &LenderContactAdapter{
		db:    db,
		query: fmt.Sprintf(`SELECT lender_name, emails FROM %s ORDER BY lender_name`, quoteTable(table)),
	}
}

type lenderContactRow struct {
	LenderName string         `db:"lender_name"`
	Emails     pq.StringArray `db:"emails"`
}

// ListContacts returns lender name to sender addresses. Repeated names are
// merged.
func (a *LenderContactAdapter) ListContacts(ctx context.Context) (map[string][]string, error) {
	var rows []lenderContactRow
	if err := a.db.SelectContext(ctx, &rows, a.query); err != nil {
		return nil, wrapDBError("list lender contacts", err)
	}
	contacts := make(map[string][]string, len(rows))
	for _, row := range rows {
		contacts[row.LenderName] = append(contacts[row.LenderName], row.Emails...)
	}
	return contacts, nil
}

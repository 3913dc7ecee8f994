package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Label is the oracle's intent label.
type Label string

const (
	LabelApproval Label = "APPROVAL"
	LabelDecline  Label = "DECLINE"
	LabelNeutral  Label = "NEUTRAL"
)

// NormalizeLabel upper-cases and trims raw. Unrecognised non-empty labels
// map to NEUTRAL; the second return is false in that case.
func NormalizeLabel(raw string) (Label, bool) {
	switch Label(strings.ToUpper(strings.TrimSpace(raw))) {
	case LabelApproval:
		return LabelApproval, true
	case LabelDecline:
		return LabelDecline, true
	case LabelNeutral:
		return LabelNeutral, true
	default:
		return LabelNeutral, false
	}
}

// IsOutcome reports whether the label produces a decline log row.
func (l Label) IsOutcome() bool {
	return l == LabelApproval || l == LabelDecline
}

var (
	ErrMissingClassification = errors.New("classification is required")
	ErrMissingOffer          = errors.New("offer is required for APPROVAL")
	ErrMissingDeclineReason  = errors.New("decline_reason is required for DECLINE")
)

// ClassificationResult is the oracle output.
type ClassificationResult struct {
	Classification Label   `json:"classification"`
	Offer          *string `json:"offer,omitempty"`
	DeclineReason  *string `json:"decline_reason,omitempty"`
	LenderName     string  `json:"lender_name,omitempty"`
}

// Validate enforces the per-variant required fields.
func (r *ClassificationResult) Validate() error {
	switch r.Classification {
	case "":
		return ErrMissingClassification
	case LabelApproval:
		if blank(r.Offer) {
			return ErrMissingOffer
		}
	case LabelDecline:
		if blank(r.DeclineReason) {
			return ErrMissingDeclineReason
		}
	case LabelNeutral:
	default:
		return fmt.Errorf("unknown classification %q", r.Classification)
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// DeclineLogRow is the persisted outcome for APPROVAL or DECLINE.
type DeclineLogRow struct {
	SubmissionID   int64     `json:"submission_id" db:"submission_id"`
	BusinessName   string    `json:"business_name" db:"business_name"`
	LenderNames    string    `json:"lender_names" db:"lender_names"`
	Classification Label     `json:"classification" db:"classification"`
	Offer          *string   `json:"offer" db:"offer"`
	DeclineReason  *string   `json:"decline_reason" db:"decline_reason"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewDeclineLogRow maps a validated APPROVAL or DECLINE result onto a row.
// Only the field belonging to the label is carried over.
func NewDeclineLogRow(sub *Submission, result *ClassificationResult, now time.Time) (*DeclineLogRow, error) {
	if !result.Classification.IsOutcome() {
		return nil, fmt.Errorf("no decline log row for %s", result.Classification)
	}
	row := &DeclineLogRow{
		SubmissionID:   sub.ID,
		BusinessName:   sub.BusinessName,
		LenderNames:    sub.LenderLabel(),
		Classification: result.Classification,
		CreatedAt:      now,
	}
	switch result.Classification {
	case LabelApproval:
		offer := strings.TrimSpace(*result.Offer)
		row.Offer = &offer
	case LabelDecline:
		reason := strings.TrimSpace(*result.DeclineReason)
		row.DeclineReason = &reason
	}
	return row, nil
}

// ClassifierLogType is the audit entry kind.
type ClassifierLogType string

const (
	LogTypeError ClassifierLogType = "error"
	LogTypeSkip  ClassifierLogType = "skip"
)

// ClassifierLogEntry is one audit trail row.
type ClassifierLogEntry struct {
	ID        int64             `json:"id,omitempty"`
	ReplyID   int64             `json:"reply_id"`
	Type      ClassifierLogType `json:"type"`
	Message   string            `json:"message"`
	Data      *Submission       `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

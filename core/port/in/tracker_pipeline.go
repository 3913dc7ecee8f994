package in

import (
	"context"
	"time"
)

// ReplyMatcher correlates inbound mailbox replies with submissions.
type ReplyMatcher interface {
	CheckThreadReplies(ctx context.Context) (*MatchReport, error)
	CheckHeuristicReplies(ctx context.Context) (*MatchReport, error)
}

// ReplyClassifier turns recorded replies into outcomes.
type ReplyClassifier interface {
	ClassifyPending(ctx context.Context) (*ClassifyReport, error)
}

// MatchReport summarises one matcher run.
type MatchReport struct {
	Stage      string        `json:"stage"`
	Candidates int           `json:"candidates,omitempty"`
	Scanned    int           `json:"scanned"`
	Matched    int           `json:"matched"`
	Duplicates int           `json:"duplicates"`
	Unmatched  int           `json:"unmatched"`
	Filtered   int           `json:"filtered"`
	NotFound   int           `json:"not_found"`
	Duration   time.Duration `json:"duration_ns"`
}

// ClassifyReport summarises one classifier run.
type ClassifyReport struct {
	DryRun       bool          `json:"dry_run"`
	Selected     int           `json:"selected"`
	Approved     int           `json:"approved"`
	Declined     int           `json:"declined"`
	Neutral      int           `json:"neutral"`
	Skipped      int           `json:"skipped"`
	OracleFailed int           `json:"oracle_failed"`
	ParseFailed  int           `json:"parse_failed"`
	Quarantined  int           `json:"quarantined"`
	Duplicates   int           `json:"duplicates"`
	Duration     time.Duration `json:"duration_ns"`
}

// Stage names accepted by PipelineRunner.
const (
	StageThread    = "thread"
	StageHeuristic = "heuristic"
	StageClassify  = "classify"
)

// RunReport is the result of one guarded stage run. Exactly one of Match and
// Classify is set.
type RunReport struct {
	RunID    string          `json:"run_id"`
	Stage    string          `json:"stage"`
	Match    *MatchReport    `json:"match,omitempty"`
	Classify *ClassifyReport `json:"classify,omitempty"`
}

// PipelineRunner runs stages under the run lock.
type PipelineRunner interface {
	Run(ctx context.Context, stage string) (*RunReport, error)
	RunAll(ctx context.Context) ([]*RunReport, error)
}

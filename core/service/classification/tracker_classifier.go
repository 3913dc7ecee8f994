// Package classification turns recorded lender replies into APPROVAL and
// DECLINE outcomes using an external classification oracle.
package classification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/logger"
)

const (
	DefaultWindow           = 8 * time.Hour
	DefaultMaxParseAttempts = 3

	dryRunPrefix = "[dry-run] "
)

// Config tunes the classifier.
type Config struct {
	// Window bounds selection to rows updated within it.
	Window time.Duration
	// DryRun suppresses outcome inserts, classified marks and attempt
	// counters. Audit entries are still written with a [dry-run] prefix.
	DryRun bool
	// MaxParseAttempts quarantines a row after this many unparseable
	// answers. Zero retries forever.
	MaxParseAttempts int
	// BatchLimit caps rows per run. Zero means no cap.
	BatchLimit uint64
	Content    ContentRules
}

func DefaultConfig() Config {
	return Config{
		Window:           DefaultWindow,
		MaxParseAttempts: DefaultMaxParseAttempts,
		Content:          ContentRules{GenericPhrases: DefaultGenericPhrases()},
	}
}

// Outcome is the per-submission result of one run.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeDeclined     Outcome = "declined"
	OutcomeNeutral      Outcome = "neutral"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeOracleFailed Outcome = "oracle_failed"
	OutcomeParseFailed  Outcome = "parse_failed"
	OutcomeQuarantined  Outcome = "quarantined"
	OutcomeDuplicate    Outcome = "duplicate"
)

// Service classifies replied, unclassified submissions.
type Service struct {
	submissions out.SubmissionRepository
	outcomes    out.OutcomeRepository
	oracle      out.ClassificationOracle
	cfg         Config
	now         func() time.Time
}

var _ in.ReplyClassifier = (*Service)(nil)

func NewService(
	submissions out.SubmissionRepository,
	outcomes out.OutcomeRepository,
	oracle out.ClassificationOracle,
	cfg Config,
) *Service {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxParseAttempts < 0 {
		cfg.MaxParseAttempts = 0
	}
	return &Service{
		submissions: submissions,
		outcomes:    outcomes,
		oracle:      oracle,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *Service) ready() error {
	switch {
	case s.submissions == nil:
		return apperr.ConfigError("submission store is not configured")
	case s.outcomes == nil:
		return apperr.ConfigError("outcome store is not configured")
	case s.oracle == nil:
		return apperr.ConfigError("classification oracle is not configured")
	}
	return nil
}

// ClassifyPending processes every replied, unclassified submission updated
// within the window. Per-row oracle and parse failures are audited and do not
// stop the run; store failures do.
func (s *Service) ClassifyPending(ctx context.Context) (*in.ClassifyReport, error) {
	start := time.Now()
	report := &in.ClassifyReport{DryRun: s.cfg.DryRun}
	if err := s.ready(); err != nil {
		return report, err
	}
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"stage":   in.StageClassify,
		"oracle":  s.oracle.Name(),
		"dry_run": s.cfg.DryRun,
	})

	subs, err := s.submissions.FindSubmissions(ctx, out.SubmissionFilter{
		Replied:      true,
		Unclassified: true,
		UpdatedSince: s.now().Add(-s.cfg.Window),
		Limit:        s.cfg.BatchLimit,
	})
	if err != nil {
		return report, fmt.Errorf("find pending submissions: %w", err)
	}
	report.Selected = len(subs)
	log.Info("Processing %d submissions", len(subs))

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sub.Classified {
			continue
		}
		outcome, err := s.classifyOne(ctx, sub)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		tally(report, outcome)
	}

	report.Duration = time.Since(start)
	log.WithDuration(report.Duration).WithFields(map[string]any{
		"approved":      report.Approved,
		"declined":      report.Declined,
		"neutral":       report.Neutral,
		"skipped":       report.Skipped,
		"oracle_failed": report.OracleFailed,
		"parse_failed":  report.ParseFailed,
		"quarantined":   report.Quarantined,
	}).Info("Classification run finished")
	return report, nil
}

func (s *Service) classifyOne(ctx context.Context, sub *domain.Submission) (Outcome, error) {
	log := logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": sub.ID,
		"lender":        sub.LenderLabel(),
	})

	content, source, ok := s.cfg.Content.Resolve(sub)
	if !ok {
		reason := s.cfg.Content.SkipReason(sub)
		log.Info("Skipping ID %d: %s", sub.ID, reason)
		if err := s.markClassified(ctx, sub); err != nil {
			return "", err
		}
		if err := s.audit(ctx, sub, domain.LogTypeSkip, reason); err != nil {
			return "", err
		}
		return OutcomeSkipped, nil
	}
	if source == SourceReplyHistory {
		log.Info("Using fallback reply_history for ID %d", sub.ID)
	}

	raw, err := s.oracle.Classify(ctx, BuildPrompt(content, sub.LenderLabel()))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.WithError(err).Error("Error processing ID %d (%s)", sub.ID, sub.LenderLabel())
		if err := s.audit(ctx, sub, domain.LogTypeError, err.Error()); err != nil {
			return "", err
		}
		return OutcomeOracleFailed, nil
	}
	log.WithField("raw", raw).Debug("Oracle answered for ID %d", sub.ID)

	parsed, err := ParseOracleOutput(raw)
	if err != nil {
		return s.parseFailed(ctx, sub, raw, err)
	}
	if !parsed.KnownLabel {
		log.Warn("Unrecognised classification %q for ID %d treated as NEUTRAL", parsed.RawLabel, sub.ID)
	}

	result := parsed.Result
	if !result.Classification.IsOutcome() {
		log.Info("NEUTRAL reply for ID %d, nothing to record", sub.ID)
		if err := s.markClassified(ctx, sub); err != nil {
			return "", err
		}
		return OutcomeNeutral, nil
	}

	row, err := domain.NewDeclineLogRow(sub, result, s.now().UTC())
	if err != nil {
		return "", err
	}
	outcome := outcomeFor(result.Classification)
	if s.cfg.DryRun {
		log.Info("[DRY RUN] Would insert %s for ID %d (%s)", result.Classification, sub.ID, sub.LenderLabel())
		return outcome, nil
	}

	inserted, err := s.outcomes.InsertDeclineLog(ctx, row)
	if err != nil {
		return "", fmt.Errorf("insert decline log for submission %d: %w", sub.ID, err)
	}
	if !inserted {
		log.Warn("Outcome for ID %d already recorded", sub.ID)
		outcome = OutcomeDuplicate
	}
	if err := s.markClassified(ctx, sub); err != nil {
		return "", err
	}
	log.Info("%s logged for ID %d (%s)", result.Classification, sub.ID, sub.LenderLabel())
	return outcome, nil
}

// parseFailed audits an unparseable answer and quarantines the row once it
// reaches MaxParseAttempts.
func (s *Service) parseFailed(ctx context.Context, sub *domain.Submission, raw string, cause error) (Outcome, error) {
	log := logger.WithContext(ctx).WithField("submission_id", sub.ID)
	message := parseFailureMessage(raw, cause)
	log.WithError(cause).Error("Failed to parse oracle output for ID %d", sub.ID)

	if err := s.audit(ctx, sub, domain.LogTypeError, message); err != nil {
		return "", err
	}
	if s.cfg.DryRun {
		return OutcomeParseFailed, nil
	}

	attempts, err := s.submissions.IncrementClassifyAttempts(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("increment classify attempts for submission %d: %w", sub.ID, err)
	}
	sub.ClassifyAttempts = attempts
	if s.cfg.MaxParseAttempts == 0 || attempts < s.cfg.MaxParseAttempts {
		return OutcomeParseFailed, nil
	}

	log.Warn("Quarantining ID %d after %d unparseable answers", sub.ID, attempts)
	if err := s.markClassified(ctx, sub); err != nil {
		return "", err
	}
	note := fmt.Sprintf("Quarantined after %d unparseable answers", attempts)
	if err := s.audit(ctx, sub, domain.LogTypeError, note); err != nil {
		return "", err
	}
	return OutcomeQuarantined, nil
}

func (s *Service) markClassified(ctx context.Context, sub *domain.Submission) error {
	if s.cfg.DryRun {
		logger.WithContext(ctx).Info("[DRY RUN] Would mark ID %d as classified", sub.ID)
		return nil
	}
	if err := s.submissions.MarkClassified(ctx, sub.ID); err != nil {
		return fmt.Errorf("mark submission %d classified: %w", sub.ID, err)
	}
	sub.Classified = true
	return nil
}

func (s *Service) audit(ctx context.Context, sub *domain.Submission, kind domain.ClassifierLogType, message string) error {
	if s.cfg.DryRun {
		message = dryRunPrefix + message
	}
	entry := &domain.ClassifierLogEntry{
		ReplyID:   sub.ID,
		Type:      kind,
		Message:   message,
		Data:      sub,
		CreatedAt: s.now().UTC(),
	}
	if err := s.outcomes.InsertClassifierLog(ctx, entry); err != nil {
		return fmt.Errorf("write classifier log for submission %d: %w", sub.ID, err)
	}
	return nil
}

func parseFailureMessage(raw string, cause error) string {
	cleaned := CleanOracleOutput(raw)
	var appErr *apperr.AppError
	if errors.As(cause, &appErr) && appErr.Message != "invalid JSON" && appErr.Err != nil {
		return fmt.Sprintf("Invalid JSON (%v): %s", appErr.Err, cleaned)
	}
	return "Invalid JSON: " + cleaned
}

func outcomeFor(label domain.Label) Outcome {
	switch label {
	case domain.LabelApproval:
		return OutcomeApproved
	case domain.LabelDecline:
		return OutcomeDeclined
	default:
		return OutcomeNeutral
	}
}

func tally(r *in.ClassifyReport, o Outcome) {
	switch o {
	case OutcomeApproved:
		r.Approved++
	case OutcomeDeclined:
		r.Declined++
	case OutcomeNeutral:
		r.Neutral++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeOracleFailed:
		r.OracleFailed++
	case OutcomeParseFailed:
		r.ParseFailed++
	case OutcomeQuarantined:
		r.Quarantined++
	case OutcomeDuplicate:
		r.Duplicates++
	}
}

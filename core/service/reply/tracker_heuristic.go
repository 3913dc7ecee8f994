package reply

import (
	"context"
	"fmt"
	"time"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/pkg/logger"
)

// HeuristicCutoff returns the newest created_at among subs minus skew.
// Messages at or before it cannot be replies to any of subs.
func HeuristicCutoff(subs []*domain.Submission, skew time.Duration) time.Time {
	var latest time.Time
	for _, sub := range subs {
		if sub.CreatedAt.After(latest) {
			latest = sub.CreatedAt
		}
	}
	return latest.Add(-skew)
}

// CheckHeuristicReplies matches unthreaded messages to submissions that have
// never recorded a reply, using the configured Strategy. In-Reply-To and the
// cutoff are checked on metadata before any full fetch.
func (s *Service) CheckHeuristicReplies(ctx context.Context) (*in.MatchReport, error) {
	start := s.now()
	report := &in.MatchReport{Stage: StageHeuristic}
	if err := s.ready(); err != nil {
		return report, err
	}
	log := logger.WithContext(ctx).WithField("stage", StageHeuristic)

	candidates, err := s.submissions.FindSubmissions(ctx, out.SubmissionFilter{Unreplied: true})
	if err != nil {
		return report, fmt.Errorf("find unreplied submissions: %w", err)
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Info("No unmatched submissions found")
		return report, nil
	}

	skew := s.cfg.CutoffSkew
	if skew <= 0 {
		skew = DefaultCutoffSkew
	}
	cutoff := HeuristicCutoff(candidates, skew)
	log = log.WithField("cutoff", cutoff.UTC().Format(time.RFC3339))

	refs, err := s.mailbox.ListRecent(ctx, s.cfg.Query)
	if err != nil {
		return report, mailboxFailure("list recent messages", err)
	}

	for _, ref := range refs {
		if len(candidates) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		msgLog := log.WithField("mailbox_id", ref.ID)

		meta, err := s.fetchMeta(ctx, ref.ID)
		if err != nil {
			return report, err
		}
		if meta == nil {
			msgLog.Warn("Message %s not found, skipping", ref.ID)
			report.NotFound++
			continue
		}
		if meta.Headers.Get(out.HeaderInReplyTo) != "" {
			report.Filtered++
			continue
		}
		if !meta.InternalDate.After(cutoff) {
			report.Filtered++
			continue
		}

		full, err := s.fetchFull(ctx, ref.ID)
		if err != nil {
			return report, err
		}
		if full == nil {
			msgLog.Warn("Full content for message %s not found, skipping", ref.ID)
			report.NotFound++
			continue
		}

		body := ExtractBody(full.Payload)
		msg := InboundMessage{
			From:    meta.Headers.Get(out.HeaderFrom),
			Subject: meta.Headers.Get(out.HeaderSubject),
			Body:    body,
		}
		idx, ok := s.strategy.FirstMatch(candidates, msg)
		if !ok {
			report.Unmatched++
			continue
		}
		sub := candidates[idx]

		entry := s.buildEntry(meta, body)
		added, err := s.recordReply(ctx, sub, entry)
		if err != nil {
			return report, err
		}
		candidates = append(candidates[:idx:idx], candidates[idx+1:]...)
		if !added {
			report.Duplicates++
			continue
		}

		report.Matched++
		msgLog.WithField("submission_id", sub.ID).
			Info("Heuristic reply matched: %s from %s", sub.BusinessName, msg.From)
	}

	report.Duration = s.now().Sub(start)
	log.WithDuration(report.Duration).
		Info("Heuristic scan complete: candidates=%d scanned=%d matched=%d",
			report.Candidates, report.Scanned, report.Matched)
	return report, nil
}

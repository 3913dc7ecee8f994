package reply

import (
	"context"
	"fmt"

	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/pkg/logger"
)

// CheckThreadReplies matches recent messages to submissions through the
// In-Reply-To header. Messages that vanish mid-run are skipped; any other
// mailbox or store error aborts the run.
func (s *Service) CheckThreadReplies(ctx context.Context) (*in.MatchReport, error) {
	start := s.now()
	report := &in.MatchReport{Stage: StageThread}
	if err := s.ready(); err != nil {
		return report, err
	}
	log := logger.WithContext(ctx).WithField("stage", StageThread)

	refs, err := s.mailbox.ListRecent(ctx, s.cfg.Query)
	if err != nil {
		return report, mailboxFailure("list recent messages", err)
	}

	for _, ref := range refs {
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

		inReplyTo := meta.Headers.Get(out.HeaderInReplyTo)
		if inReplyTo == "" {
			report.Filtered++
			continue
		}

		matches, err := s.submissions.FindSubmissions(ctx, out.SubmissionFilter{MessageID: inReplyTo})
		if err != nil {
			return report, fmt.Errorf("find submission for %s: %w", inReplyTo, err)
		}
		if len(matches) == 0 {
			msgLog.Warn("No matching submission found for message_id: %s", inReplyTo)
			report.Unmatched++
			continue
		}
		if len(matches) > 1 {
			msgLog.WithField("matches", len(matches)).
				Warn("Multiple submissions share message_id %s, using id %d", inReplyTo, matches[0].ID)
		}
		sub := matches[0]

		if sub.ReplyHistory.Contains(ref.ID) {
			report.Duplicates++
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

		entry := s.buildEntry(meta, ExtractBody(full.Payload))
		added, err := s.recordReply(ctx, sub, entry)
		if err != nil {
			return report, err
		}
		if !added {
			report.Duplicates++
			continue
		}

		report.Matched++
		msgLog.WithField("submission_id", sub.ID).
			Info("Reply updated for %s from %s", sub.BusinessName, entry.Sender)
	}

	report.Duration = s.now().Sub(start)
	log.WithDuration(report.Duration).
		Info("Thread reply check complete: scanned=%d matched=%d unmatched=%d not_found=%d",
			report.Scanned, report.Matched, report.Unmatched, report.NotFound)
	return report, nil
}

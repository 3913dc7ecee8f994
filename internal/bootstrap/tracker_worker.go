package bootstrap

import (
	"context"
	"fmt"

	"reply_tracker/adapter/in/worker"
	"reply_tracker/config"
	"reply_tracker/core/port/in"
	"reply_tracker/pkg/logger"
)

// NewScheduler builds the interval scheduler over the runner.
func NewScheduler(deps *Dependencies) *worker.Scheduler {
	s := deps.Config.Scheduler
	scheduler := worker.NewScheduler(deps.Runner, worker.Intervals{
		Thread:    s.ThreadInterval,
		Heuristic: s.HeuristicInterval,
		Classify:  s.ClassifyInterval,
	})
	scheduler.SetStageTimeout(s.StageTimeout)
	return scheduler
}

// RunStage runs one stage, or all of them for stage "all", and logs the
// reports. It is the entry point of the one-shot CLI commands.
func RunStage(ctx context.Context, runner in.PipelineRunner, stage string) ([]*in.RunReport, error) {
	if stage == "all" {
		reports, err := runner.RunAll(ctx)
		for _, r := range reports {
			logReport(r)
		}
		return reports, err
	}

	report, err := runner.Run(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", describeStage(stage), err)
	}
	logReport(report)
	return []*in.RunReport{report}, nil
}

func logReport(r *in.RunReport) {
	log := logger.WithFields(map[string]any{"run_id": r.RunID, "stage": r.Stage})
	switch {
	case r.Match != nil:
		log.WithFields(map[string]any{
			"scanned":    r.Match.Scanned,
			"matched":    r.Match.Matched,
			"duplicates": r.Match.Duplicates,
			"unmatched":  r.Match.Unmatched,
		}).Info("%s finished", describeStage(r.Stage))
	case r.Classify != nil:
		log.WithFields(map[string]any{
			"dry_run":     r.Classify.DryRun,
			"selected":    r.Classify.Selected,
			"approved":    r.Classify.Approved,
			"declined":    r.Classify.Declined,
			"neutral":     r.Classify.Neutral,
			"skipped":     r.Classify.Skipped,
			"quarantined": r.Classify.Quarantined,
		}).Info("%s finished", describeStage(r.Stage))
	}
}

func describeStage(stage string) string {
	switch stage {
	case in.StageThread:
		return "thread reply check"
	case in.StageHeuristic:
		return "heuristic reply check"
	case in.StageClassify:
		return "reply classification"
	default:
		return fmt.Sprintf("stage %q", stage)
	}
}

// WithDryRun returns a copy of cfg with dry-run forced on.
func WithDryRun(cfg *config.Config, dryRun bool) *config.Config {
	if !dryRun {
		return cfg
	}
	copied := *cfg
	copied.Pipeline.DryRun = true
	return &copied
}

// InitLogger applies the log section of cfg.
func InitLogger(cfg *config.Config) {
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Service: "reply-tracker",
		Pretty:  cfg.Log.Pretty,
	})
}

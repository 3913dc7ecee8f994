// Package pipeline runs the matcher and classifier stages with overlap
// protection and per-run ids.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reply_tracker/core/port/in"
	"reply_tracker/core/port/out"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/logger"
	"reply_tracker/pkg/metrics"
)

// DefaultLockTTL bounds how long a crashed holder can block a stage.
const DefaultLockTTL = 15 * time.Minute

// Stages lists every stage in run-all order.
var Stages = []string{in.StageThread, in.StageHeuristic, in.StageClassify}

// Runner guards each stage with an in-process mutex and, when configured, a
// distributed RunLock.
type Runner struct {
	matcher    in.ReplyMatcher
	classifier in.ReplyClassifier
	lock       out.RunLock
	lockTTL    time.Duration

	mu       sync.Mutex
	local    map[string]*sync.Mutex
	newID    func() string
	recorder RunRecorder
}

// RunRecorder receives the result of every attempted run.
type RunRecorder interface {
	RecordRun(stage, result string, d time.Duration)
}

// SetRecorder attaches run statistics. Nil detaches.
func (r *Runner) SetRecorder(rec RunRecorder) {
	r.recorder = rec
}

func (r *Runner) record(stage, result string, d time.Duration) {
	if r.recorder != nil {
		r.recorder.RecordRun(stage, result, d)
	}
}

var _ in.PipelineRunner = (*Runner)(nil)

// NewRunner accepts a nil lock; only the in-process guard applies then.
func NewRunner(matcher in.ReplyMatcher, classifier in.ReplyClassifier, lock out.RunLock, lockTTL time.Duration) *Runner {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Runner{
		matcher:    matcher,
		classifier: classifier,
		lock:       lock,
		lockTTL:    lockTTL,
		local:      make(map[string]*sync.Mutex),
		newID:      uuid.NewString,
	}
}

func (r *Runner) stageMutex(stage string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.local[stage]
	if !ok {
		m = &sync.Mutex{}
		r.local[stage] = m
	}
	return m
}

// Run executes one stage. It returns an apperr LOCKED error when the stage
// is already running here or elsewhere.
func (r *Runner) Run(ctx context.Context, stage string) (*RunReport, error) {
	exec, err := r.stageFunc(stage)
	if err != nil {
		return nil, err
	}

	local := r.stageMutex(stage)
	if !local.TryLock() {
		r.record(stage, metrics.ResultLocked, 0)
		return nil, apperr.Locked(stage)
	}
	defer local.Unlock()

	if r.lock != nil {
		release, ok, err := r.lock.TryLock(ctx, stage, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire %s lock: %w", stage, err)
		}
		if !ok {
			r.record(stage, metrics.ResultLocked, 0)
			return nil, apperr.Locked(stage)
		}
		defer release()
	}

	report := &RunReport{RunID: r.newID(), Stage: stage}
	ctx = logger.ContextWithRunID(ctx, report.RunID)
	log := logger.WithContext(ctx).WithField("stage", stage)
	log.Info("Run started")

	start := time.Now()
	if err := exec(ctx, report); err != nil {
		elapsed := time.Since(start)
		r.record(stage, metrics.ResultFailed, elapsed)
		log.WithDuration(elapsed).WithError(err).Error("Run failed")
		return report, err
	}
	elapsed := time.Since(start)
	r.record(stage, metrics.ResultSucceeded, elapsed)
	log.WithDuration(elapsed).Info("Run finished")
	return report, nil
}

// RunReport aliases the port type for callers of this package.
type RunReport = in.RunReport

type stageFunc func(ctx context.Context, report *RunReport) error

func (r *Runner) stageFunc(stage string) (stageFunc, error) {
	switch stage {
	case in.StageThread, in.StageHeuristic:
		if r.matcher == nil {
			return nil, apperr.ConfigError("reply matcher is not configured")
		}
		check := r.matcher.CheckThreadReplies
		if stage == in.StageHeuristic {
			check = r.matcher.CheckHeuristicReplies
		}
		return func(ctx context.Context, report *RunReport) error {
			match, err := check(ctx)
			report.Match = match
			return err
		}, nil
	case in.StageClassify:
		if r.classifier == nil {
			return nil, apperr.ConfigError("reply classifier is not configured")
		}
		return func(ctx context.Context, report *RunReport) error {
			result, err := r.classifier.ClassifyPending(ctx)
			report.Classify = result
			return err
		}, nil
	default:
		return nil, apperr.BadRequest(fmt.Sprintf("unknown stage %q", stage))
	}
}

// RunAll runs thread, heuristic and classify in order and stops at the
// first failure.
func (r *Runner) RunAll(ctx context.Context) ([]*RunReport, error) {
	reports := make([]*RunReport, 0, len(Stages))
	for _, stage := range Stages {
		report, err := r.Run(ctx, stage)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("%s stage: %w", stage, err)
		}
	}
	return reports, nil
}

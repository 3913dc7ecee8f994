// Package worker drives the pipeline stages on fixed intervals.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"reply_tracker/core/port/in"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/logger"
)

// DefaultStageTimeout bounds a single scheduled stage run.
const DefaultStageTimeout = 10 * time.Minute

// Intervals holds the period of each stage. A non-positive interval disables
// the stage.
type Intervals struct {
	Thread    time.Duration
	Heuristic time.Duration
	Classify  time.Duration
}

func (iv Intervals) byStage() map[string]time.Duration {
	return map[string]time.Duration{
		in.StageThread:    iv.Thread,
		in.StageHeuristic: iv.Heuristic,
		in.StageClassify:  iv.Classify,
	}
}

// Scheduler runs each enabled stage once at start and then on its ticker.
type Scheduler struct {
	runner       in.PipelineRunner
	intervals    Intervals
	stageTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner in.PipelineRunner, intervals Intervals) *Scheduler {
	return &Scheduler{
		runner:       runner,
		intervals:    intervals,
		stageTimeout: DefaultStageTimeout,
	}
}

// SetStageTimeout overrides DefaultStageTimeout.
func (s *Scheduler) SetStageTimeout(d time.Duration) {
	if d > 0 {
		s.stageTimeout = d
	}
}

// Start launches one loop per enabled stage and returns how many were
// started. Calling Start twice without Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return 0
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	started := 0
	for _, stage := range []string{in.StageThread, in.StageHeuristic, in.StageClassify} {
		interval := s.intervals.byStage()[stage]
		if interval <= 0 {
			logger.WithField("stage", stage).Info("[Scheduler] Stage disabled")
			continue
		}
		started++
		s.wg.Add(1)
		go s.loop(ctx, stage, interval)
	}
	logger.Info("[Scheduler] Started %d stage loop(s)", started)
	return started
}

// Stop cancels all loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	logger.Info("[Scheduler] Stopping...")
	cancel()
	s.wg.Wait()
	logger.Info("[Scheduler] Stopped")
}

func (s *Scheduler) loop(ctx context.Context, stage string, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx, stage)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, stage)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, stage string) {
	ctx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	log := logger.WithField("stage", stage)
	if _, err := s.runner.Run(ctx, stage); err != nil {
		switch {
		case apperr.HasCode(err, apperr.CodeLocked):
			log.Info("[Scheduler] Previous run still active, skipping tick")
		case errors.Is(ctx.Err(), context.Canceled):
			log.Debug("[Scheduler] Run cancelled")
		default:
			log.WithError(err).Error("[Scheduler] Stage run failed")
		}
	}
}

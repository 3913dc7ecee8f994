package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_tracker/core/port/in"
	"reply_tracker/pkg/apperr"
	"reply_tracker/pkg/metrics"
)

type fakeMatcher struct {
	mu        sync.Mutex
	calls     []string
	threadErr error
	block     chan struct{}
	started   chan struct{}
}

func (f *fakeMatcher) record(stage string) {
	f.mu.Lock()
	f.calls = append(f.calls, stage)
	f.mu.Unlock()
}

func (f *fakeMatcher) CheckThreadReplies(ctx context.Context) (*in.MatchReport, error) {
	f.record(in.StageThread)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return &in.MatchReport{Stage: in.StageThread, Matched: 1}, f.threadErr
}

func (f *fakeMatcher) CheckHeuristicReplies(ctx context.Context) (*in.MatchReport, error) {
	f.record(in.StageHeuristic)
	return &in.MatchReport{Stage: in.StageHeuristic}, nil
}

type fakeClassifier struct {
	calls int
}

func (f *fakeClassifier) ClassifyPending(ctx context.Context) (*in.ClassifyReport, error) {
	f.calls++
	return &in.ClassifyReport{Approved: 2}, nil
}

type fakeLock struct {
	held     map[string]bool
	released []string
	err      error
	ttl      time.Duration
}

func (l *fakeLock) TryLock(_ context.Context, stage string, ttl time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[stage] {
		return nil, false, nil
	}
	l.held[stage] = true
	l.ttl = ttl
	return func() {
		delete(l.held, stage)
		l.released = append(l.released, stage)
	}, true, nil
}

func TestRunner_RunStages(t *testing.T) {
	matcher := &fakeMatcher{}
	classifier := &fakeClassifier{}
	lock := &fakeLock{held: map[string]bool{}}
	r := NewRunner(matcher, classifier, lock, time.Minute)
	r.newID = func() string { return "run-1" }

	report, err := r.Run(context.Background(), in.StageThread)
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1, report.Match.Matched)
	assert.Nil(t, report.Classify)

	report, err = r.Run(context.Background(), in.StageClassify)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Classify.Approved)

	assert.Equal(t, []string{in.StageThread, in.StageClassify}, lock.released)
	assert.Equal(t, time.Minute, lock.ttl)
}

func TestRunner_LockedElsewhere(t *testing.T) {
	lock := &fakeLock{held: map[string]bool{in.StageClassify: true}}
	classifier := &fakeClassifier{}
	r := NewRunner(&fakeMatcher{}, classifier, lock, 0)

	_, err := r.Run(context.Background(), in.StageClassify)
	assert.True(t, apperr.HasCode(err, apperr.CodeLocked))
	assert.Zero(t, classifier.calls)
}

func TestRunner_LockError(t *testing.T) {
	lock := &fakeLock{held: map[string]bool{}, err: errors.New("redis down")}
	r := NewRunner(&fakeMatcher{}, &fakeClassifier{}, lock, 0)

	_, err := r.Run(context.Background(), in.StageThread)
	assert.ErrorContains(t, err, "redis down")
}

func TestRunner_InProcessGuard(t *testing.T) {
	matcher := &fakeMatcher{block: make(chan struct{}), started: make(chan struct{})}
	r := NewRunner(matcher, &fakeClassifier{}, nil, 0)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), in.StageThread)
		done <- err
	}()
	<-matcher.started

	_, err := r.Run(context.Background(), in.StageThread)
	assert.True(t, apperr.HasCode(err, apperr.CodeLocked))

	_, err = r.Run(context.Background(), in.StageHeuristic)
	assert.NoError(t, err)

	close(matcher.block)
	require.NoError(t, <-done)
}

func TestRunner_UnknownStage(t *testing.T) {
	r := NewRunner(&fakeMatcher{}, &fakeClassifier{}, nil, 0)
	_, err := r.Run(context.Background(), "reindex")
	assert.True(t, apperr.HasCode(err, apperr.CodeBadRequest))
}

func TestRunner_MissingClassifier(t *testing.T) {
	r := NewRunner(&fakeMatcher{}, nil, nil, 0)
	_, err := r.Run(context.Background(), in.StageClassify)
	assert.True(t, apperr.HasCode(err, apperr.CodeConfigError))
}

func TestRunner_RunAllOrderAndStop(t *testing.T) {
	matcher := &fakeMatcher{}
	classifier := &fakeClassifier{}
	r := NewRunner(matcher, classifier, nil, 0)

	reports, err := r.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, []string{in.StageThread, in.StageHeuristic}, matcher.calls)
	assert.Equal(t, in.StageClassify, reports[2].Stage)

	failing := &fakeMatcher{threadErr: errors.New("gmail down")}
	classifier = &fakeClassifier{}
	r = NewRunner(failing, classifier, nil, 0)
	reports, err = r.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thread stage")
	assert.Len(t, reports, 1)
	assert.Zero(t, classifier.calls)
}

func TestRunner_RecordsStats(t *testing.T) {
	lock := &fakeLock{held: map[string]bool{in.StageClassify: true}}
	r := NewRunner(&fakeMatcher{threadErr: errors.New("gmail down")}, &fakeClassifier{}, lock, 0)
	stats := metrics.NewRegistry(10)
	r.SetRecorder(stats)

	_, err := r.Run(context.Background(), in.StageHeuristic)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), in.StageThread)
	require.Error(t, err)
	_, err = r.Run(context.Background(), in.StageClassify)
	require.Error(t, err)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap[in.StageHeuristic].Results[metrics.ResultSucceeded])
	assert.Equal(t, int64(1), snap[in.StageThread].Results[metrics.ResultFailed])
	assert.Equal(t, int64(1), snap[in.StageClassify].Results[metrics.ResultLocked])
	assert.Zero(t, snap[in.StageClassify].Samples)
}

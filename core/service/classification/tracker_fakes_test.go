package classification

import (
	"context"
	"errors"
	"sync"
	"time"

	"reply_tracker/core/domain"
	"reply_tracker/core/port/out"
)

var testNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type fakeSubmissions struct {
	mu       sync.Mutex
	rows     []*domain.Submission
	filters  []out.SubmissionFilter
	marked   []int64
	findErr  error
	markErr  error
	attempts map[int64]int
}

func (f *fakeSubmissions) FindSubmissions(_ context.Context, filter out.SubmissionFilter) ([]*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var result []*domain.Submission
	for _, row := range f.rows {
		if filter.Unclassified && row.Classified {
			continue
		}
		if filter.Replied && row.ReplyStatus == nil {
			continue
		}
		if !filter.UpdatedSince.IsZero() && row.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		clone := *row
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeSubmissions) UpdateReply(context.Context, int64, domain.ReplyUpdate) error {
	return errors.New("not used")
}

func (f *fakeSubmissions) MarkClassified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	for _, row := range f.rows {
		if row.ID == id {
			row.Classified = true
		}
	}
	return nil
}

func (f *fakeSubmissions) IncrementClassifyAttempts(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = map[int64]int{}
	}
	f.attempts[id]++
	for _, row := range f.rows {
		if row.ID == id {
			row.ClassifyAttempts = f.attempts[id]
		}
	}
	return f.attempts[id], nil
}

type fakeOutcomes struct {
	mu        sync.Mutex
	declines  []*domain.DeclineLogRow
	logs      []*domain.ClassifierLogEntry
	insertErr error
}

func (f *fakeOutcomes) InsertDeclineLog(_ context.Context, row *domain.DeclineLogRow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	for _, existing := range f.declines {
		if existing.SubmissionID == row.SubmissionID {
			return false, nil
		}
	}
	f.declines = append(f.declines, row)
	return true, nil
}

func (f *fakeOutcomes) InsertClassifierLog(_ context.Context, entry *domain.ClassifierLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeOutcomes) RecentClassifierLogs(context.Context, int) ([]*domain.ClassifierLogEntry, error) {
	return f.logs, nil
}

type fakeOracle struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts []string
}

func (f *fakeOracle) Classify(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", errors.New("no answer queued")
	}
	answer := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return answer, nil
}

func (f *fakeOracle) Name() string { return "fake" }

func strPtr(s string) *string { return &s }

func repliedSubmission(id int64, business, lender, body string) *domain.Submission {
	status := domain.ReplyStatusReplied
	return &domain.Submission{
		ID:           id,
		BusinessName: business,
		LenderName:   lender,
		ReplyStatus:  &status,
		ReplyBody:    &body,
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}

func newTestService(subs *fakeSubmissions, outcomes *fakeOutcomes, oracle *fakeOracle, cfg Config) *Service {
	svc := NewService(subs, outcomes, oracle, cfg)
	svc.now = func() time.Time { return testNow }
	return svc
}

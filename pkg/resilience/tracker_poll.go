package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when a poll loop runs out of attempts or time
// before the condition reports done.
var ErrPollExhausted = errors.New("poll budget exhausted")

// PollPolicy bounds a fixed-interval poll loop. A zero MaxAttempts or
// MaxElapsed disables that bound; at least one should be set.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultPollPolicy polls once a second for up to two minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxAttempts: 120,
		MaxElapsed:  2 * time.Minute,
	}
}

// Poll sleeps Interval, then calls check, until check reports done, returns
// an error, ctx is cancelled or the budget runs out. It returns the number of
// checks performed.
func (p PollPolicy) Poll(ctx context.Context, check func(ctx context.Context) (bool, error)) (int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}

	start := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-timer.C:
		}

		attempts++
		done, err := check(ctx)
		if err != nil {
			return attempts, err
		}
		if done {
			return attempts, nil
		}

		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return attempts, fmt.Errorf("%w: %d attempts", ErrPollExhausted, attempts)
		}
		if p.MaxElapsed > 0 && time.Since(start)+interval > p.MaxElapsed {
			return attempts, fmt.Errorf("%w: %s elapsed", ErrPollExhausted, time.Since(start).Round(time.Millisecond))
		}
		timer.Reset(interval)
	}
}

package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// retryState is a state of the retry machine:
//
//	attempting -> success
//	attempting -> backoff -> attempting
//	attempting -> exhausted
//
// Non-retryable errors leave attempting directly with the error.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSuccess
	stateExhausted
)

func (s retryState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSuccess:
		return "success"
	case stateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("retryState(%d)", int(s))
	}
}

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the download jobs: six attempts, 1s doubling to 16s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
	}
}

// Do runs attempt until it succeeds, fails permanently, or the attempt budget
// is spent. On exhaustion the last transient error is returned wrapped.
func (p RetryPolicy) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	state := stateAttempting
	attempts := 0
	delay := p.BaseDelay
	var lastErr error

	for {
		switch state {
		case stateAttempting:
			attempts++
			lastErr = attempt(ctx)
			switch {
			case lastErr == nil:
				state = stateSuccess
			case !domain.IsRetryable(lastErr):
				return lastErr
			case attempts >= maxAttempts:
				state = stateExhausted
			default:
				state = stateBackoff
			}

		case stateBackoff:
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("fetch: backoff interrupted after %d attempts (last: %v): %w", attempts, lastErr, err)
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
			state = stateAttempting

		case stateSuccess:
			return nil

		case stateExhausted:
			return fmt.Errorf("fetch: gave up after %d attempts: %w", attempts, lastErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

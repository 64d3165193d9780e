package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestRetryPolicyBackoffDoublesUpToMax(t *testing.T) {
	rec := &recordingSleep{}
	p := RetryPolicy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &domain.TransientError{StatusCode: 503}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("got %v, want wrapped ErrTransient", err)
	}
	if calls != 6 {
		t.Fatalf("calls = %d, want 6", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestRetryPolicySucceedsAfterTransient(t *testing.T) {
	rec := &recordingSleep{}
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &domain.TransientError{StatusCode: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || len(rec.delays) != 2 {
		t.Fatalf("calls = %d sleeps = %d, want 3 and 2", calls, len(rec.delays))
	}
}

func TestRetryPolicyPermanentSkipsBackoff(t *testing.T) {
	rec := &recordingSleep{}
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &domain.PermanentError{StatusCode: 404}
	})
	if !errors.Is(err, domain.ErrPermanent) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want permanent not-found", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls = %d sleeps = %d, want 1 and 0", calls, len(rec.delays))
	}
}

func TestRetryPolicyBackoffInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}
	err := p.Do(ctx, func(context.Context) error {
		return &domain.TransientError{StatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRetryStateString(t *testing.T) {
	if got := stateBackoff.String(); got != "backoff" {
		t.Fatalf("got %q", got)
	}
	if got := retryState(42).String(); got != "retryState(42)" {
		t.Fatalf("got %q", got)
	}
}

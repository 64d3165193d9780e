// Package fetch issues rate-limited JSON GET requests and maps HTTP failures
// onto the domain error taxonomy.
package fetch

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is the request budget shared by every caller of a Fetcher. Wait
// blocks until the next request may be sent or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter returns a limiter that admits one request every 1/rps seconds.
// The burst of one means no two requests are ever closer than that interval,
// regardless of how many goroutines share it.
func NewLimiter(rps float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Compile-time interface check.
var _ Limiter = (*rate.Limiter)(nil)

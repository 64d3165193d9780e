package domain

import (
	"context"
	"time"
)

// AggregateCache keeps expensive per-market lookups between runs: the resolved
// condition id of a market and the trade aggregate of a condition.
//
// Implementations return ErrNotFound on a miss.
type AggregateCache interface {
	GetConditionID(ctx context.Context, marketID string) (string, error)
	SetConditionID(ctx context.Context, marketID, conditionID string) error
	GetAggregate(ctx context.Context, conditionID string) (VolumeAggregate, error)
	SetAggregate(ctx context.Context, conditionID string, agg VolumeAggregate) error
}

// RunLocker serialises runs that share an output directory across processes.
// Acquire returns ErrLockHeld when another holder owns name.
type RunLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

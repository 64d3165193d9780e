package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// releaseLua deletes the lock only while it still carries the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RunLock is a SETNX lock with a TTL, used so only one replica runs a job
// against the shared cache and bucket at a time.
type RunLock struct {
	rdb     *redis.Client
	prefix  string
	release *redis.Script
}

// NewRunLock creates a RunLock on c's connection and key prefix.
func NewRunLock(c *Client) *RunLock {
	return &RunLock{
		rdb:     c.rdb,
		prefix:  c.prefix,
		release: redis.NewScript(releaseLua),
	}
}

func (l *RunLock) key(name string) string {
	return l.prefix + "lock:" + name
}

// Acquire takes the lock for name. The returned release func may be called
// more than once.
func (l *RunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := l.key(name)

	ok, err := l.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s: %w", name, domain.ErrLockHeld)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The run context is usually cancelled by now.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.release.Run(releaseCtx, l.rdb, []string{k}, token).Err()
	}, nil
}

var _ domain.RunLocker = (*RunLock)(nil)

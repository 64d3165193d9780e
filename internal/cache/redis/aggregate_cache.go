package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// AggregateCache implements domain.AggregateCache.
//
// Key schema:
//
//	{prefix}condition:{marketID}    - string, the normalised condition id
//	{prefix}aggregate:{conditionID} - hash with field "data" holding JSON
type AggregateCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewAggregateCache creates an AggregateCache backed by c.
func NewAggregateCache(c *Client) *AggregateCache {
	return &AggregateCache{rdb: c.rdb, prefix: c.prefix, ttl: c.ttl}
}

func (ac *AggregateCache) conditionKey(marketID string) string {
	return ac.prefix + "condition:" + marketID
}

func (ac *AggregateCache) aggregateKey(conditionID string) string {
	return ac.prefix + "aggregate:" + conditionID
}

// GetConditionID returns domain.ErrNotFound on a miss.
func (ac *AggregateCache) GetConditionID(ctx context.Context, marketID string) (string, error) {
	cid, err := ac.rdb.Get(ctx, ac.conditionKey(marketID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get condition %s: %w", marketID, err)
	}
	return cid, nil
}

func (ac *AggregateCache) SetConditionID(ctx context.Context, marketID, conditionID string) error {
	if err := ac.rdb.Set(ctx, ac.conditionKey(marketID), conditionID, ac.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set condition %s: %w", marketID, err)
	}
	return nil
}

// GetAggregate returns domain.ErrNotFound on a miss.
func (ac *AggregateCache) GetAggregate(ctx context.Context, conditionID string) (domain.VolumeAggregate, error) {
	data, err := ac.rdb.HGet(ctx, ac.aggregateKey(conditionID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.VolumeAggregate{}, domain.ErrNotFound
		}
		return domain.VolumeAggregate{}, fmt.Errorf("redis: get aggregate %s: %w", conditionID, err)
	}
	return decodeAggregate(conditionID, data)
}

func (ac *AggregateCache) SetAggregate(ctx context.Context, conditionID string, agg domain.VolumeAggregate) error {
	data, err := encodeAggregate(agg)
	if err != nil {
		return fmt.Errorf("redis: marshal aggregate %s: %w", conditionID, err)
	}

	key := ac.aggregateKey(conditionID)
	pipe := ac.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "truncated", agg.Truncated)
	if ac.ttl > 0 {
		pipe.Expire(ctx, key, ac.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set aggregate %s: %w", conditionID, err)
	}
	return nil
}

func encodeAggregate(agg domain.VolumeAggregate) ([]byte, error) {
	return json.Marshal(agg)
}

func decodeAggregate(conditionID string, data []byte) (domain.VolumeAggregate, error) {
	var agg domain.VolumeAggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return domain.VolumeAggregate{}, fmt.Errorf("redis: unmarshal aggregate %s: %w", conditionID, err)
	}
	if agg.VolumeByDay == nil {
		agg.VolumeByDay = map[domain.Day]float64{}
	}
	if agg.CountByDay == nil {
		agg.CountByDay = map[domain.Day]int{}
	}
	return agg, nil
}

var _ domain.AggregateCache = (*AggregateCache)(nil)

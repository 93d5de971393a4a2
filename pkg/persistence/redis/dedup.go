// Package redis provides a Redis-backed dedup repository, used when several
// dispatcher instances share the same event stream.
package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Marks expire after the longest plausible redelivery window; a redelivered
// event older than this starts a fresh execution rather than leaking keys
// forever.
const defaultMarkTTL = 7 * 24 * time.Hour

// DedupRepository acquires (event, workflow) marks with SET NX, which is
// atomic across processes.
type DedupRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewDedupRepository(redisURL string) (*DedupRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &DedupRepository{
		client: redis.NewClient(opts),
		ttl:    defaultMarkTTL,
	}, nil
}

func (r *DedupRepository) Acquire(ctx context.Context, eventID, workflowID string) (bool, error) {
	key := "reapflow:dedup:" + eventID + ":" + workflowID

	acquired, err := r.client.SetNX(ctx, key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire dedup mark: %w", err)
	}

	return acquired, nil
}

func (r *DedupRepository) Release(ctx context.Context, eventID, workflowID string) error {
	key := "reapflow:dedup:" + eventID + ":" + workflowID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release dedup mark: %w", err)
	}

	return nil
}

func (r *DedupRepository) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (r *DedupRepository) Close() error {
	return r.client.Close()
}

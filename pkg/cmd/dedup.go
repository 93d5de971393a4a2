package cmd

import (
	"github.com/reapflow/reapflow/pkg/persistence"
	"github.com/reapflow/reapflow/pkg/persistence/redis"
)

type dedupOverride struct {
	persistence.Persistence

	dedup persistence.DedupRepository
}

func (d dedupOverride) Dedup() persistence.DedupRepository {
	return d.dedup
}

// WithRedisDedup swaps the persistence dedup repository for a Redis-backed
// one. Used when dispatchers scale horizontally and the event dedup check
// needs to be faster than the primary store.
func WithRedisDedup(p persistence.Persistence, redisURL string) (persistence.Persistence, error) {
	dedup, err := redis.NewDedupRepository(redisURL)
	if err != nil {
		return nil, err
	}

	return dedupOverride{Persistence: p, dedup: dedup}, nil
}

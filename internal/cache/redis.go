package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps entries in redis and relies on key expiry for the TTL.
type redisStore struct {
	client *redis.Client
	prefix string
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[cache] Redis get %s failed: %v", key, err)
		return nil, false
	}
	return val, true
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefix+key, value, effectiveTTL(ttl)).Err(); err != nil {
		log.Printf("[cache] Redis set %s failed: %v", key, err)
	}
}

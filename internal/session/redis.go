package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps credentials in a single redis key, for deployments where
// the local disk does not survive a redeploy.
type redisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	dir    string
}

func (s *redisStore) Dir() string {
	return s.dir
}

func (s *redisStore) Load(ctx context.Context) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return val, nil
}

func (s *redisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *redisStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil {
			return fmt.Errorf("failed to remove session directory: %w", err)
		}
	}
	return nil
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

// StoreType selects the cache backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

var ErrInvalidStoreType = errors.New("invalid cache store type")

// Store is a key/value cache with per-entry expiry. Expired entries read as
// absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Option configures a Store built by NewStore.
type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisPrefix string
	now         func() time.Time
}

// WithRedisClient sets the client used by the redis backend.
func WithRedisClient(client *redis.Client) Option {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisPrefix namespaces redis keys.
func WithRedisPrefix(prefix string) Option {
	return func(c *storeConfig) {
		c.redisPrefix = prefix
	}
}

// WithClock overrides the memory backend clock.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		c.now = now
	}
}

// NewStore builds a cache backend. The redis backend requires WithRedisClient.
func NewStore(storeType StoreType, opts ...Option) (Store, error) {
	cfg := &storeConfig{redisPrefix: "crm:cache:"}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory, "":
		m := NewMemory()
		if cfg.now != nil {
			m.now = cfg.now
		}
		return m, nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, errors.New("redis cache requires a client")
		}
		return &redisStore{client: cfg.redisClient, prefix: cfg.redisPrefix}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

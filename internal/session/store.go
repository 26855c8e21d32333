package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// CredentialStore persists the opaque gateway credentials of one session.
type CredentialStore interface {
	// Load returns nil if nothing was saved (not an error).
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored credentials.
	Save(ctx context.Context, data []byte) error

	// Reset wipes the credentials. It is safe to call when nothing is stored.
	Reset(ctx context.Context) error

	// Dir is where the transport keeps its own device files. Empty for
	// stores without a local directory.
	Dir() string
}

type StoreType string

const (
	StoreTypeFile  StoreType = "file"
	StoreTypeRedis StoreType = "redis"
)

type StoreOption func(*storeConfig)

type storeConfig struct {
	dir         string
	redisClient *redis.Client
	redisKey    string
	redisTTL    time.Duration
}

// WithDir sets the session directory for the file store.
func WithDir(dir string) StoreOption {
	return func(c *storeConfig) {
		c.dir = dir
	}
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisKey sets the key holding the credentials.
func WithRedisKey(key string) StoreOption {
	return func(c *storeConfig) {
		c.redisKey = key
	}
}

// WithRedisTTL expires credentials after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// NewStore creates a CredentialStore of the given type.
func NewStore(storeType StoreType, opts ...StoreOption) (CredentialStore, error) {
	config := &storeConfig{redisKey: "crm:whatsapp:credentials"}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeFile, "":
		if config.dir == "" {
			return nil, ErrInvalidConfig
		}
		return NewFileStore(config.dir)

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{
			client: config.redisClient,
			key:    config.redisKey,
			ttl:    config.redisTTL,
			dir:    config.dir,
		}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}

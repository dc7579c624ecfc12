package history

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"GemChat/internal/session"
)

// DefaultRecordID is the well-known key under which the single chat
// history record is kept, mirroring a one-slot history store.
const DefaultRecordID = "default"

var (
	// ErrInvalidDriver indicates an unsupported store driver name.
	ErrInvalidDriver = errors.New("invalid history driver")

	// ErrInvalidConfig indicates missing or inconsistent driver options.
	ErrInvalidConfig = errors.New("invalid history store configuration")
)

// Driver names supported by New.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type storeConfig struct {
	path        string
	redisClient *redis.Client
	redisTTL    time.Duration
}

// StoreOption configures a history store.
type StoreOption func(*storeConfig)

// WithPath sets the database file path for the sqlite driver.
func WithPath(path string) StoreOption {
	return func(c *storeConfig) { c.path = path }
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithRedisTTL sets the record expiry for the redis driver.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.redisTTL = ttl }
}

// New creates a history store for the given driver.
// Supports "memory", "sqlite" and "redis". The sqlite driver requires
// WithPath, the redis driver requires WithRedisClient.
func New(driver string, opts ...StoreOption) (session.Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch driver {
	case DriverMemory:
		return newMemoryStore(), nil

	case DriverSQLite:
		if config.path == "" {
			return nil, ErrInvalidConfig
		}
		return newSQLiteStore(config.path)

	case DriverRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := config.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{client: config.redisClient, ttl: ttl}, nil

	default:
		return nil, ErrInvalidDriver
	}
}

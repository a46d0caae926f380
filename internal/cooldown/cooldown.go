// Package cooldown stores the shared topic-generation cooldown instant that
// every process instance must observe before calling the topic provider.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKey is the key used when NewRedisStore is given an empty key
	DefaultRedisKey = "battlearena:topic_cooldown_until"

	// ExpiryGrace keeps the redis key past the cooldown it stores. Readers
	// decide with Active against their own clock; the TTL only reclaims
	// the key.
	ExpiryGrace = time.Hour
)

// Store reads and writes the cooldown. Get returns nil when no cooldown was
// ever set. Set is last-write-wins.
type Store interface {
	Get(ctx context.Context) (*time.Time, error)
	Set(ctx context.Context, until time.Time) error
}

// Active reports whether until is set and still in the future at now
func Active(until *time.Time, now time.Time) bool {
	return until != nil && now.Before(*until)
}

// stateDB is the slice of the persistence layer the database store needs
type stateDB interface {
	GetCooldown(ctx context.Context) (*time.Time, error)
	SetCooldown(ctx context.Context, until time.Time) error
}

// DatabaseStore keeps the cooldown in the shared_state table
type DatabaseStore struct {
	db stateDB
}

// NewDatabaseStore wraps the persistence layer as a Store
func NewDatabaseStore(db stateDB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Get implements Store
func (s *DatabaseStore) Get(ctx context.Context) (*time.Time, error) {
	return s.db.GetCooldown(ctx)
}

// Set implements Store
func (s *DatabaseStore) Set(ctx context.Context, until time.Time) error {
	return s.db.SetCooldown(ctx, until)
}

// RedisStore keeps the cooldown in redis so replicas that do not share a
// database file still agree on it
type RedisStore struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithRedisClock sets the clock the key TTL is computed from. Pass the
// same clock the orchestrator uses.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(client redis.Cmdable, key string, opts ...RedisOption) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	s := &RedisStore{client: client, key: key, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient parses a redis:// or rediss:// URL and pings the server
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context) (*time.Time, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cooldown: %w", err)
	}

	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cooldown %q: %w", raw, err)
	}
	return &until, nil
}

// Set implements Store. The key outlives the cooldown by ExpiryGrace so a
// reader whose clock lags the writer's still sees it.
func (s *RedisStore) Set(ctx context.Context, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl < 0 {
		ttl = 0
	}
	ttl += ExpiryGrace
	if err := s.client.Set(ctx, s.key, until.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cooldown: %w", err)
	}
	return nil
}

var (
	_ Store = (*DatabaseStore)(nil)
	_ Store = (*RedisStore)(nil)
)

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// TTL bounds how long an entry may sit in Redis. GitHub responses
	// carry no Expires header; entries stay revalidatable via ETag for
	// their whole lifetime, so this is an eviction bound rather than a
	// freshness bound.
	TTL time.Duration
}

// DefaultConfig returns safe cache defaults.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour}
}

// Manager handles caching operations with a Redis backend.
type Manager struct {
	redis  *redis.Client
	config Config
}

// NewManager creates a cache manager. A nil Redis client is a
// programming error, not a runtime condition.
func NewManager(redisClient *redis.Client, config Config) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Manager{redis: redisClient, config: config}
}

// Get retrieves an entry. Returns ErrCacheMiss when absent.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	cacheHits.Inc()
	return &entry, nil
}

// Set stores an entry under the manager's TTL.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.config.TTL).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Touch refreshes the TTL of an existing entry, typically after a 304
// confirmed it is still current.
func (m *Manager) Touch(ctx context.Context, key Key) error {
	if err := m.redis.Expire(ctx, key.String(), m.config.TTL).Err(); err != nil {
		cacheErrors.WithLabelValues("touch").Inc()
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

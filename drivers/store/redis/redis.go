// Package redis provides a querycache.Store backed by Redis, for sharing
// warm query results across processes of the same deployment.
package redis

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cobertis/querycache"
)

// store implements querycache.Store using Redis.
// The counters field tracks operation statistics for monitoring (thread-safe).
type store struct {
	redisClient       *redis.Client
	mu                sync.Mutex
	counters          map[string]int
	createdInternally bool // Indicates whether redisClient was created by this struct
}

// Ensure store implements querycache.Store and io.Closer.
var (
	_ querycache.Store = (*store)(nil)
	_ io.Closer        = (*store)(nil)
)

// Options holds configuration for the Redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewStore creates a new Redis store wrapper.
// If redisCli is not nil, it will be used directly. Otherwise, opts will be
// used to create a new client, which is pinged before use.
func NewStore(redisCli *redis.Client, opts *Options) (querycache.Store, error) {
	var rdb *redis.Client
	var createdInternally bool

	if redisCli != nil {
		rdb = redisCli
	} else {
		if opts == nil {
			opts = &Options{}
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		createdInternally = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	return &store{
		redisClient:       rdb,
		counters:          make(map[string]int),
		createdInternally: createdInternally,
	}, nil
}

// incrementCounter safely increments a named operation counter.
func (s *store) incrementCounter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
}

// Get retrieves a raw string value from Redis.
func (s *store) Get(ctx context.Context, key string) (string, error) {
	s.incrementCounter("Get")
	val, err := s.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		s.incrementCounter("GetMiss")
		return "", querycache.ErrNotFound
	} else if err != nil {
		s.incrementCounter("GetError")
		return "", fmt.Errorf("redis Get error for key '%s': %w", key, err)
	}
	s.incrementCounter("GetHit")
	return val, nil
}

// Set stores a raw string value in Redis.
func (s *store) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	s.incrementCounter("Set")
	if err := s.redisClient.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("redis Set error for key '%s': %w", key, err)
	}
	return nil
}

// Delete removes a key from Redis.
func (s *store) Delete(ctx context.Context, key string) error {
	s.incrementCounter("Delete")
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis Del error for key '%s': %w", key, err)
	}
	return nil
}

// Stats returns a copy of the operation counters.
func (s *store) Stats() querycache.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return querycache.Stats{Counters: out}
}

// Close implements io.Closer. Only closes the underlying client if it was
// created internally.
func (s *store) Close() error {
	if s.createdInternally && s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}

// Package redis implements the shared leaderboard cache on Redis. It is the
// multi-instance alternative to the in-process cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the client settings.
type Config struct {
	// Addr is "host:port".
	Addr     string
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig points at a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

var (
	// ErrCacheMiss is returned by Get for absent or expired keys.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned by NewCache when the first ping fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON encoding failures.
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// PrefixLeaderboard is the default namespace of board keys.
const PrefixLeaderboard = "contest:leaderboard:"

// scanBatch bounds both SCAN COUNT and the number of keys per UNLINK.
const scanBatch = 100

// Cache stores JSON values with a TTL.
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings once, bounded by DialTimeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the server; the health endpoint calls it.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set stores value as JSON under key.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the JSON stored under key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// GetCounted decodes the JSON stored under key into dest and returns the sum
// of the counters, read in the same MGET. Missing counters count as zero.
func (c *Cache) GetCounted(ctx context.Context, key string, counters []string, dest any) (uint64, error) {
	vals, err := c.client.MGet(ctx, append([]string{key}, counters...)...).Result()
	if err != nil {
		return 0, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return 0, ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return sumCounters(vals[1:])
}

// Counters returns the sum of the counters. Missing counters count as zero.
func (c *Cache) Counters(ctx context.Context, counters ...string) (uint64, error) {
	if len(counters) == 0 {
		return 0, nil
	}
	vals, err := c.client.MGet(ctx, counters...).Result()
	if err != nil {
		return 0, err
	}
	return sumCounters(vals)
}

// Incr bumps a counter, creating it at 1.
func (c *Cache) Incr(ctx context.Context, counter string) error {
	return c.client.Incr(ctx, counter).Err()
}

func sumCounters(vals []any) (uint64, error) {
	var sum uint64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache: counter %q: %w", s, err)
		}
		sum += n
	}
	return sum, nil
}

// Delete removes keys. Missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Unlink(ctx, keys...).Err()
}

// DeleteByPattern removes every key matching a SCAN MATCH pattern, in
// batches. SCAN walks the whole keyspace so patterns should be anchored on a
// prefix.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.Delete(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.Delete(ctx, batch...)
}

// Package redis implements the Redis side of the engine: a JSON cache client,
// the progress-overview snapshot cache and the pub/sub forwarder that mirrors
// domain events to other processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes one Redis node.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize    int
	MaxRetries  int
	DialTimeout time.Duration

	// IOTimeout applies to both reads and writes.
	IOTimeout time.Duration
}

// DefaultConfig points at a local node.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        6379,
		PoolSize:    10,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
		IOTimeout:   3 * time.Second,
	}
}

// Addr joins host and port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.IOTimeout,
		WriteTimeout: c.IOTimeout,
	}
}

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	ErrCacheKeyEmpty      = errors.New("cache: key cannot be empty")
)

const (
	PrefixOverview       = "progress:overview:"
	DefaultEventsChannel = "progress:events"

	// TTLOverview bounds how stale a snapshot can get when an invalidation
	// is lost.
	TTLOverview = 5 * time.Minute
)

// OverviewKey is the snapshot key of one user.
func OverviewKey(userID string) string {
	return PrefixOverview + userID
}

// Cache stores JSON documents and publishes JSON messages.
type Cache struct {
	client redis.UniversalClient
}

// NewCache dials cfg and fails with ErrCacheConnection when the node does
// not answer a PING within DialTimeout.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func encode(name string, v any) ([]byte, error) {
	if name == "" {
		return nil, ErrCacheKeyEmpty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheSerialization, name, err)
	}
	return data, nil
}

// Set stores value as JSON under key. ttl <= 0 keeps it until deleted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the document at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCacheSerialization, key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Publish sends message as JSON on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := encode(channel, message)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a subscription that the caller closes.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

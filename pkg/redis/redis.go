package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRetries bounds the startup ping; the wait doubles from RetryInterval
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		PoolSize:      50,
		MinIdleConns:  5,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Client owns the connection pool shared by the availability cache,
// idempotency records and rate limit counters.
type Client struct {
	rdb    *redis.Client
	config *Config
}

// NewClient connects and pings until Redis answers or the retries run out
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rdb := redis.NewClient(cfg.options())

	result := retry.New(&retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     8 * cfg.RetryInterval,
		Multiplier:      2,
	}).Do(ctx, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if result.Err != nil {
		rdb.Close()
		cause := result.LastError
		if cause == nil {
			cause = result.Err
		}
		return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Addr(), result.Attempts, cause)
	}

	return &Client{rdb: rdb, config: cfg}, nil
}

// Client returns the underlying go-redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings with a short deadline and reports pool exhaustion
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	stats := c.rdb.PoolStats()
	if c.config.PoolSize > 0 && stats.TotalConns >= uint32(c.config.PoolSize) && stats.IdleConns == 0 && stats.Timeouts > 0 {
		return fmt.Errorf("redis pool exhausted: %d conns, %d timeouts", stats.TotalConns, stats.Timeouts)
	}
	return nil
}

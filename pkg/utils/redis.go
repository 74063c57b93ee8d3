package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// RedisConfig controls the client used for the presence mirror. Zero values
// fall back to conservative defaults.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize    int
	PoolTimeout time.Duration

	PingTimeout time.Duration

	// ConnectRetries is how many extra pings are attempted at startup.
	ConnectRetries uint64
	RetryDelay     time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	setDuration(&out.DialTimeout, 3*time.Second)
	setDuration(&out.ReadTimeout, 2*time.Second)
	setDuration(&out.WriteTimeout, 2*time.Second)
	setDuration(&out.PoolTimeout, 4*time.Second)
	setDuration(&out.PingTimeout, 2*time.Second)
	setDuration(&out.RetryDelay, 500*time.Millisecond)
	if out.PoolSize <= 0 {
		// presence writes are tiny; a small pool is plenty
		out.PoolSize = 10
	}
	return out
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		PoolTimeout:  c.PoolTimeout,
	}
}

// OpenRedis builds a client and waits for a successful PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("redis db must not be negative, got %d", cfg.DB)
	}

	rdb := redis.NewClient(cfg.options())
	b := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewConstant(cfg.RetryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
		return retry.RetryableError(rdb.Ping(pingCtx).Err())
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

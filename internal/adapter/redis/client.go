// Package redis keeps preference stores in Redis hashes so that several
// agents can share one set of settings.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Observer receives the latency and outcome of every command.
type Observer interface {
	Observe(backend, operation string, d time.Duration, err error)
}

// NewClient parses redisURL, attaches the breaker and metrics hooks and
// verifies the connection.
func NewClient(ctx context.Context, redisURL string, observer Observer, breaker *BreakerHook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if observer != nil {
		rdb.AddHook(&metricsHook{observer: observer})
	}
	if breaker != nil {
		rdb.AddHook(breaker)
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

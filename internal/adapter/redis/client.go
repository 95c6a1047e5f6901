package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/platform/retry"
)

// NewClient parses redisURL, installs the metrics and circuit breaker hooks and
// waits for the server to answer PING. m may be nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(m))
	rdb.AddHook(NewCircuitBreakerHook(m))

	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		slog.Warn("Redis not ready, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	if err := retry.DoVoid(ctx, policy, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}

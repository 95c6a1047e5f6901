package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/pztrick/television/internal/adapter/metrics"
)

func newTestMetrics() *metrics.RedisMetrics {
	return metrics.NewRedisMetrics(prometheus.NewRegistry())
}

func TestMetricsHook_CountsByStatus(t *testing.T) {
	m := newTestMetrics()
	hook := NewMetricsHook(m)
	ctx := context.Background()

	ok := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	miss := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	fail := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return errors.New("eof") })

	assert.NoError(t, ok(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")))
	assert.ErrorIs(t, miss(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")), goredis.Nil)
	assert.Error(t, fail(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("publish", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("publish", "error")))
}

func TestMetricsHook_NilMetrics(t *testing.T) {
	hook := NewMetricsHook(nil)
	ctx := context.Background()
	process := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })
	assert.NoError(t, process(ctx, nil))
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })

	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	m := newTestMetrics()
	hook := NewCircuitBreakerHook(m)
	ctx := context.Background()

	calls := 0
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		calls++
		return errors.New("connection refused")
	})

	for range 5 {
		assert.Error(t, process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x")))
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitState))

	err := process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls, "open breaker must not reach redis")
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })

	for range 10 {
		_ = process(ctx, goredis.NewStringCmd(ctx, "get", "k"))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// MetricsHook implements redis.Hook to collect metrics on all Redis operations
type MetricsHook struct{}

var _ goredis.Hook = (*MetricsHook)(nil)

// DialHook counts failed connection attempts
func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisConnectionErrors.Inc()
		}
		return conn, err
	}
}

// ProcessHook records outcome and latency for every command
func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)

		operation := cmd.Name()
		metrics.RedisOpsTotal.WithLabelValues(operation, opStatus(err)).Inc()
		metrics.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

		return err
	}
}

// ProcessPipelineHook tracks a pipeline as a single operation
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)

		metrics.RedisOpsTotal.WithLabelValues("pipeline", opStatus(err)).Inc()
		metrics.RedisOpDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())

		return err
	}
}

// A cache miss is not a failure.
func opStatus(err error) string {
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "error"
	}
	return "success"
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerDelay            = 30 * time.Second
	fallbackMaxAge          = 5 * time.Minute
)

// CircuitBreakerHook implements redis.Hook to add circuit breaker protection
// to all Redis operations. While the breaker is open, GET is answered from the
// last value this hook saw for the key (if younger than fallbackMaxAge); every
// other command fails fast with circuitbreaker.ErrOpen.
type CircuitBreakerHook struct {
	cb    circuitbreaker.CircuitBreaker[any]
	clock clockwork.Clock

	mu       sync.RWMutex
	lastRead map[string]fallbackValue
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

type fallbackValue struct {
	data   string
	seenAt time.Time
}

// NewCircuitBreakerHook opens after 5 consecutive failures, probes again
// after 30s and closes on the first successful probe.
func NewCircuitBreakerHook() *CircuitBreakerHook {
	return newCircuitBreakerHook(breakerFailureThreshold, breakerDelay, clockwork.NewRealClock())
}

func newCircuitBreakerHook(threshold uint, delay time.Duration, clock clockwork.Clock) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(threshold).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:       cb,
		clock:    clock,
		lastRead: make(map[string]fallbackValue),
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// DialHook wraps connection establishment with the breaker
func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

// ProcessHook wraps command execution with the breaker and the GET fallback
func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.fallback(cmd)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker process failed: %w", err)
		}

		h.cb.RecordSuccess()
		if err == nil {
			h.remember(cmd)
		}
		return err
	}
}

// ProcessPipelineHook wraps pipeline execution with the breaker
func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker pipeline failed: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

func (h *CircuitBreakerHook) fallback(cmd goredis.Cmder) error {
	if cmd.Name() != "get" {
		return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
	}

	c, ok := cmd.(*goredis.StringCmd)
	if !ok || len(cmd.Args()) < 2 {
		return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
	}

	key := fmt.Sprint(cmd.Args()[1])

	h.mu.RLock()
	v, found := h.lastRead[key]
	h.mu.RUnlock()

	if !found || h.clock.Since(v.seenAt) > fallbackMaxAge {
		return fmt.Errorf("redis circuit breaker open and no recent value: %w", circuitbreaker.ErrOpen)
	}

	slog.Debug("Circuit breaker open, serving last read value", "key", key)
	c.SetVal(v.data)
	return nil
}

func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	if cmd.Name() != "get" || len(cmd.Args()) < 2 {
		return
	}
	c, ok := cmd.(*goredis.StringCmd)
	if !ok {
		return
	}

	h.mu.Lock()
	h.lastRead[fmt.Sprint(cmd.Args()[1])] = fallbackValue{data: c.Val(), seenAt: h.clock.Now()}
	h.mu.Unlock()
}

// State returns the current state of the breaker.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

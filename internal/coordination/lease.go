package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const (
	PollerLeaseKey  = "funding:poller:leader"
	DefaultLeaseTTL = 15 * time.Second
)

// ErrNotLeader is returned by Renew when another instance holds the lease.
var ErrNotLeader = errors.New("not leader")

var (
	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// Lease is a single-holder lock with a TTL. The holder must renew it before
// the TTL lapses; a crashed holder loses it when the key expires.
type Lease struct {
	rdb        goredis.Cmdable
	clock      clockwork.Clock
	key        string
	instanceID string
	ttl        time.Duration
}

// NewLease creates a lease on key for instanceID. Non-positive ttl uses DefaultLeaseTTL.
func NewLease(rdb goredis.Cmdable, clock clockwork.Clock, key, instanceID string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Lease{rdb: rdb, clock: clock, key: key, instanceID: instanceID, ttl: ttl}
}

// TryAcquire takes the lease if nobody holds it.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// Renew extends the TTL if this instance still holds the lease.
func (l *Lease) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	if res == 0 {
		return ErrNotLeader
	}
	return nil
}

// Release gives the lease up if this instance holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// Holder returns the instance currently holding the lease, or "" if none.
func (l *Lease) Holder(ctx context.Context) (string, error) {
	id, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lease %s: %w", l.key, err)
	}
	return id, nil
}

// RunWhileLeader runs fn for as long as this instance holds the lease,
// retrying acquisition every ttl/3. fn's context is cancelled when the lease
// is lost or ctx ends. Blocks until ctx is cancelled and fn has returned.
func (l *Lease) RunWhileLeader(ctx context.Context, fn func(ctx context.Context)) {
	ticker := l.clock.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	stepDown := func(transition string) {
		cancel()
		wg.Wait()
		cancel = nil
		metrics.PollerLeader.Set(0)
		metrics.LeaseTransitionsTotal.WithLabelValues(transition).Inc()
	}

	for {
		if cancel == nil {
			if ok, err := l.TryAcquire(ctx); err != nil {
				if ctx.Err() == nil {
					slog.WarnContext(ctx, "Lease acquisition failed", "key", l.key, "error", err)
				}
			} else if ok {
				slog.InfoContext(ctx, "Acquired lease", "key", l.key, "instance_id", l.instanceID)
				metrics.PollerLeader.Set(1)
				metrics.LeaseTransitionsTotal.WithLabelValues("acquired").Inc()

				var leaderCtx context.Context
				leaderCtx, cancel = context.WithCancel(ctx)
				wg.Add(1)
				go func() {
					defer wg.Done()
					fn(leaderCtx)
				}()
			}
		} else if err := l.Renew(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "Lost lease", "key", l.key, "instance_id", l.instanceID, "error", err)
			stepDown("lost")
		}

		select {
		case <-ctx.Done():
			if cancel != nil {
				stepDown("released")
				releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				if err := l.Release(releaseCtx); err != nil {
					slog.Warn("Failed to release lease", "key", l.key, "error", err)
				}
				done()
			}
			return
		case <-ticker.Chan():
		}
	}
}

// Package poller drives the periodic upstream fetch. Each tick fetches the
// current document, stores it (or the degraded sentinel on failure), diffs it
// against the previous snapshot and hands the result to the broadcaster.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/correlation"
)

const (
	DefaultInterval = 20 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Poller runs update-and-broadcast ticks. Ticks never overlap: the Run loop
// and PollNow share one tick lock, and a scheduled tick that finds the lock
// held is skipped.
type Poller struct {
	fetcher     domain.Fetcher
	store       domain.SnapshotStore
	differ      domain.Differ
	broadcaster domain.ChangeBroadcaster
	clock       clockwork.Clock

	interval time.Duration
	timeout  time.Duration

	tickMu sync.Mutex
	flight singleflight.Group
}

// New creates a Poller. Non-positive interval or timeout fall back to the defaults.
func New(
	fetcher domain.Fetcher,
	store domain.SnapshotStore,
	differ domain.Differ,
	broadcaster domain.ChangeBroadcaster,
	clock clockwork.Clock,
	interval, timeout time.Duration,
) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		fetcher:     fetcher,
		store:       store,
		differ:      differ,
		broadcaster: broadcaster,
		clock:       clock,
		interval:    interval,
		timeout:     timeout,
	}
}

// Run polls once immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Poller started", "interval", p.interval, "timeout", p.timeout)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.tryTick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller stopped")
			return
		case <-ticker.Chan():
			p.tryTick(ctx)
		}
	}
}

// PollNow runs a tick synchronously and returns the snapshot it stored.
// Concurrent callers share a single tick.
func (p *Poller) PollNow(ctx context.Context) *domain.Snapshot {
	ch := p.flight.DoChan("poll", func() (any, error) {
		p.tickMu.Lock()
		defer p.tickMu.Unlock()
		return p.tick(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*domain.Snapshot)
	case <-ctx.Done():
		return nil
	}
}

// tryTick runs a tick unless one is already in flight.
func (p *Poller) tryTick(ctx context.Context) bool {
	if !p.tickMu.TryLock() {
		slog.Debug("Poll tick skipped, previous tick still running")
		metrics.PollsTotal.WithLabelValues("skipped").Inc()
		return false
	}
	defer p.tickMu.Unlock()

	p.tick(ctx)
	return true
}

// tick must be called with tickMu held.
func (p *Poller) tick(ctx context.Context) *domain.Snapshot {
	ctx = correlation.WithPollID(ctx, correlation.NewID())
	start := p.clock.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	snapshot, err := p.fetcher.Fetch(fetchCtx)
	cancel()

	outcome := "success"
	if err != nil {
		slog.WarnContext(ctx, "Upstream fetch failed, storing degraded snapshot", "error", err)
		snapshot = domain.NewDegradedSnapshot()
		outcome = "failure"
	}

	p.apply(ctx, snapshot)

	metrics.PollsTotal.WithLabelValues(outcome).Inc()
	metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	return snapshot
}

// apply performs exactly one store write and the resulting broadcasts.
func (p *Poller) apply(ctx context.Context, snapshot *domain.Snapshot) {
	previous, _ := p.store.Get(ctx)
	p.store.Set(ctx, snapshot)

	if previous.Degraded() != snapshot.Degraded() {
		status := snapshot.Status()
		n := p.broadcaster.BroadcastStatus(status)
		slog.InfoContext(ctx, "Feed status changed", "degraded", status.Degraded, "recipients", n)
	}

	changeset := p.differ.Diff(previous, snapshot)
	if changeset.Empty() {
		slog.DebugContext(ctx, "No changes since previous snapshot", "entries", len(snapshot.Entries))
		return
	}

	n := p.broadcaster.Broadcast(changeset)
	slog.DebugContext(ctx, "Changeset broadcast",
		"changed", len(changeset.Entries), "entries", len(snapshot.Entries), "recipients", n)
}

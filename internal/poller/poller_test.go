package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeNoob53/funding-calculator-server/internal/cache"
	"github.com/CodeNoob53/funding-calculator-server/internal/diff"
	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
)

type fetchResult struct {
	snapshot *domain.Snapshot
	err      error
}

type mockFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (m *mockFetcher) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	m.calls.Add(1)
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return nil, errors.New("no more results")
	}
	r := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return r.snapshot, r.err
}

type recordingBroadcaster struct {
	mu         sync.Mutex
	changesets []*domain.Changeset
	statuses   []domain.FeedStatus
}

func (r *recordingBroadcaster) Broadcast(cs *domain.Changeset) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changesets = append(r.changesets, cs)
	return 1
}

func (r *recordingBroadcaster) BroadcastStatus(status domain.FeedStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return 1
}

func (r *recordingBroadcaster) getChangesets() []*domain.Changeset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Changeset(nil), r.changesets...)
}

func (r *recordingBroadcaster) getStatuses() []domain.FeedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FeedStatus(nil), r.statuses...)
}

type countingStore struct {
	*cache.MemoryStore
	sets atomic.Int32
}

func (c *countingStore) Set(ctx context.Context, s *domain.Snapshot) {
	c.sets.Add(1)
	c.MemoryStore.Set(ctx, s)
}

func rate(v float64) *float64 { return &v }

func snapshotWithRate(r float64) *domain.Snapshot {
	return &domain.Snapshot{
		Code:    "0",
		Message: "success",
		Entries: []domain.Entry{{
			Symbol:      "BTC",
			MarginListA: []domain.ExchangeQuote{{ExchangeName: "Binance", Rate: rate(r)}},
		}},
	}
}

type fixture struct {
	poller      *Poller
	fetcher     *mockFetcher
	store       *countingStore
	broadcaster *recordingBroadcaster
	clock       *clockwork.FakeClock
}

func newFixture(t *testing.T, results ...fetchResult) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	f := &fixture{
		fetcher:     &mockFetcher{results: results},
		store:       &countingStore{MemoryStore: cache.NewMemoryStore(time.Hour, clock)},
		broadcaster: &recordingBroadcaster{},
		clock:       clock,
	}
	f.poller = New(f.fetcher, f.store, diff.NewFieldDiffer(), f.broadcaster, clock, time.Second, 50*time.Millisecond)
	return f
}

func TestTick_ColdStartBroadcastsEverything(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})

	require.True(t, f.poller.tryTick(context.Background()))

	stored, ok := f.store.Get(context.Background())
	require.True(t, ok)
	assert.Equal(t, "0", stored.Code)

	changesets := f.broadcaster.getChangesets()
	require.Len(t, changesets, 1)
	assert.Len(t, changesets[0].Entries, 1)
	assert.Empty(t, f.broadcaster.getStatuses())
}

func TestTick_UnchangedDataIsNotBroadcast(t *testing.T) {
	f := newFixture(t,
		fetchResult{snapshot: snapshotWithRate(0.0001)},
		fetchResult{snapshot: snapshotWithRate(0.0001)},
	)
	ctx := context.Background()

	f.poller.tryTick(ctx)
	f.poller.tryTick(ctx)

	assert.Len(t, f.broadcaster.getChangesets(), 1, "second identical tick must not broadcast")
}

func TestTick_ChangedRateBroadcastsChangeset(t *testing.T) {
	f := newFixture(t,
		fetchResult{snapshot: snapshotWithRate(0.0001)},
		fetchResult{snapshot: snapshotWithRate(0.0002)},
	)
	ctx := context.Background()

	f.poller.tryTick(ctx)
	f.poller.tryTick(ctx)

	changesets := f.broadcaster.getChangesets()
	require.Len(t, changesets, 2)
	quote := changesets[1].Entries[0].MarginListA[0]
	assert.Equal(t, 0.0002, *quote.Rate)
}

func TestTick_FailureStoresSentinelAndAnnouncesStatus(t *testing.T) {
	f := newFixture(t,
		fetchResult{snapshot: snapshotWithRate(0.0001)},
		fetchResult{err: domain.ErrUpstreamUnavailable},
	)
	ctx := context.Background()

	f.poller.tryTick(ctx)
	f.poller.tryTick(ctx)

	stored, ok := f.store.Get(ctx)
	require.True(t, ok)
	assert.True(t, stored.Degraded())
	assert.Equal(t, domain.DegradedMessage, stored.Message)

	assert.Len(t, f.broadcaster.getChangesets(), 1, "entering degraded state sends no changeset")

	statuses := f.broadcaster.getStatuses()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Degraded)
	assert.Equal(t, domain.DegradedCode, statuses[0].Code)
}

func TestTick_RecoveryAnnouncesStatusAndSendsFullData(t *testing.T) {
	f := newFixture(t,
		fetchResult{err: domain.ErrUpstreamUnavailable},
		fetchResult{snapshot: snapshotWithRate(0.0001)},
	)
	ctx := context.Background()

	f.poller.tryTick(ctx)
	f.poller.tryTick(ctx)

	statuses := f.broadcaster.getStatuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Degraded)
	assert.False(t, statuses[1].Degraded)

	changesets := f.broadcaster.getChangesets()
	require.Len(t, changesets, 1)
	assert.Len(t, changesets[0].Entries, 1)
}

func TestTick_RepeatedFailuresStayQuiet(t *testing.T) {
	f := newFixture(t, fetchResult{err: domain.ErrUpstreamUnavailable})
	ctx := context.Background()

	for range 3 {
		f.poller.tryTick(ctx)
	}

	assert.Len(t, f.broadcaster.getStatuses(), 1)
	assert.Empty(t, f.broadcaster.getChangesets())
}

func TestTick_TimeoutStoresSentinel(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})
	f.fetcher.block = make(chan struct{})

	start := time.Now()
	f.poller.tryTick(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	stored, ok := f.store.Get(context.Background())
	require.True(t, ok)
	assert.True(t, stored.Degraded())
}

func TestTick_ExactlyOneStoreWritePerTick(t *testing.T) {
	f := newFixture(t,
		fetchResult{snapshot: snapshotWithRate(0.0001)},
		fetchResult{err: errors.New("boom")},
		fetchResult{snapshot: snapshotWithRate(0.0003)},
	)
	ctx := context.Background()

	for range 3 {
		f.poller.tryTick(ctx)
	}

	assert.Equal(t, int32(3), f.store.sets.Load())
}

func TestTryTick_SkipsWhileTickInFlight(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})
	f.fetcher.block = make(chan struct{})
	f.fetcher.entered = make(chan struct{}, 1)
	f.poller.timeout = 5 * time.Second

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.poller.PollNow(context.Background())
	}()

	<-f.fetcher.entered
	assert.False(t, f.poller.tryTick(context.Background()), "tick must be skipped while another is in flight")

	close(f.fetcher.block)
	<-done
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
}

func TestPollNow_ReturnsStoredSnapshot(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})

	snap := f.poller.PollNow(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, "BTC", snap.Entries[0].Symbol)

	stored, ok := f.store.Get(context.Background())
	require.True(t, ok)
	assert.Same(t, snap, stored)
}

func TestPollNow_ConcurrentCallersShareOneTick(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})
	f.fetcher.block = make(chan struct{})
	f.fetcher.entered = make(chan struct{}, 1)
	f.poller.timeout = 5 * time.Second

	var wg sync.WaitGroup
	results := make([]*domain.Snapshot, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.poller.PollNow(context.Background())
		}()
	}

	<-f.fetcher.entered
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.block)
	wg.Wait()

	assert.Equal(t, int32(1), f.fetcher.calls.Load())
	for _, r := range results {
		assert.NotNil(t, r)
	}
}

func TestPollNow_CallerCancellation(t *testing.T) {
	f := newFixture(t, fetchResult{snapshot: snapshotWithRate(0.0001)})
	f.fetcher.block = make(chan struct{})
	f.fetcher.entered = make(chan struct{}, 1)
	f.poller.timeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan *domain.Snapshot, 1)
	go func() { result <- f.poller.PollNow(ctx) }()

	<-f.fetcher.entered
	cancel()
	assert.Nil(t, <-result)

	close(f.fetcher.block)
	assert.Eventually(t, func() bool {
		_, ok := f.store.Get(context.Background())
		return ok
	}, time.Second, 10*time.Millisecond, "shared tick completes after the caller leaves")
}

func TestRun_PollsImmediatelyThenOnInterval(t *testing.T) {
	f := newFixture(t,
		fetchResult{snapshot: snapshotWithRate(0.0001)},
		fetchResult{snapshot: snapshotWithRate(0.0002)},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.poller.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return f.fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)

	assert.Eventually(t, func() bool { return f.fetcher.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.broadcaster.getChangesets()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestNew_Defaults(t *testing.T) {
	p := New(&mockFetcher{}, cache.NewMemoryStore(0, clockwork.NewFakeClock()), diff.NewFieldDiffer(), &recordingBroadcaster{}, clockwork.NewFakeClock(), 0, 0)
	assert.Equal(t, DefaultInterval, p.interval)
	assert.Equal(t, DefaultTimeout, p.timeout)
}

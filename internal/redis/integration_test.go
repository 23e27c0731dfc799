package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	if err := redContainer.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err, "failed to create redis client")
	require.NoError(t, client.FlushAll(ctx).Err(), "failed to flush redis")

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func rate(v float64) *float64 { return &v }

func TestSnapshotStore_Integration_RoundTrip(t *testing.T) {
	client := setupTestClient(t)
	store := NewSnapshotStore(client, time.Minute, clockwork.NewRealClock())
	ctx := context.Background()

	_, ok := store.Get(ctx)
	assert.False(t, ok, "empty slot should miss")

	snap := &domain.Snapshot{
		Code:    "0",
		Message: "success",
		Entries: []domain.Entry{{
			Symbol:      "BTC",
			MarginListA: []domain.ExchangeQuote{{ExchangeName: "Binance", Rate: rate(0.0001)}},
			PriceA:      rate(65000.5),
		}},
	}
	store.Set(ctx, snap)

	got, ok := store.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	info := store.Info(ctx)
	assert.Equal(t, "redis", info.Backend)
	assert.True(t, info.HasData)
	assert.False(t, info.Degraded)
	assert.Equal(t, 1, info.Entries)
}

func TestSnapshotStore_Integration_Expiry(t *testing.T) {
	client := setupTestClient(t)
	store := NewSnapshotStore(client, time.Second, clockwork.NewRealClock())
	ctx := context.Background()

	store.Set(ctx, domain.NewDegradedSnapshot())

	got, ok := store.Get(ctx)
	require.True(t, ok)
	assert.True(t, got.Degraded())

	assert.Eventually(t, func() bool {
		_, ok := store.Get(ctx)
		return !ok
	}, 3*time.Second, 100*time.Millisecond)
}

func TestSnapshotStore_Integration_Replace(t *testing.T) {
	client := setupTestClient(t)
	store := NewSnapshotStore(client, time.Minute, clockwork.NewRealClock())
	ctx := context.Background()

	store.Set(ctx, &domain.Snapshot{Code: "0", Entries: []domain.Entry{{Symbol: "BTC"}}})
	store.Set(ctx, &domain.Snapshot{Code: "0", Entries: []domain.Entry{{Symbol: "ETH"}, {Symbol: "SOL"}}})

	got, ok := store.Get(ctx)
	require.True(t, ok)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "ETH", got.Entries[0].Symbol)
}

func TestSnapshotStore_Integration_CorruptValueIsMiss(t *testing.T) {
	client := setupTestClient(t)
	store := NewSnapshotStore(client, time.Minute, clockwork.NewRealClock())
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, snapshotKey, "not json", time.Minute).Err())

	_, ok := store.Get(ctx)
	assert.False(t, ok)
}

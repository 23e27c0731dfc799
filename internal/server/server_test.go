package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/CodeNoob53/funding-calculator-server/internal/app"
	"github.com/CodeNoob53/funding-calculator-server/internal/broadcast"
	"github.com/CodeNoob53/funding-calculator-server/internal/cache"
	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/heartbeat"
)

const testSecret = "test-jwt-secret"

// --- Mock implementations ---

type mockRefresher struct {
	snapshot *domain.Snapshot
	calls    int
}

func (m *mockRefresher) PollNow(context.Context) *domain.Snapshot {
	m.calls++
	return m.snapshot
}

type mockRedisClient struct {
	pingErr error
}

func (m *mockRedisClient) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

// --- Test helpers ---

type testEnv struct {
	srv         *Server
	clock       *clockwork.FakeClock
	store       *cache.MemoryStore
	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	supervisor  *heartbeat.Supervisor
	refresher   *mockRefresher
}

type testOption func(*Config, *Deps)

func withConfig(fn func(*Config)) testOption {
	return func(cfg *Config, _ *Deps) { fn(cfg) }
}

func withRedisHealthCheck(client redisHealthChecker) testOption {
	return func(_ *Config, deps *Deps) { deps.Redis = client }
}

func newTestEnv(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClock()
	env := &testEnv{
		clock:      clock,
		store:      cache.NewMemoryStore(time.Minute, clock),
		registry:   broadcast.NewRegistry(broadcast.UpdatesGroup),
		supervisor: heartbeat.NewSupervisor(clock, 30*time.Second, 3),
		refresher:  &mockRefresher{},
	}
	env.broadcaster = broadcast.NewBroadcaster(env.registry, clock)
	t.Cleanup(env.supervisor.Stop)

	cfg := Config{
		Port:              "0",
		Environment:       "development",
		ClientURL:         "http://localhost:5173",
		JWTSecret:         testSecret,
		APIKey:            "socket-key",
		RateLimitRequests: 100,
		RateLimitWindow:   15 * time.Minute,
		MaxConnections:    10,
	}
	deps := Deps{
		Store:       env.store,
		Refresher:   env.refresher,
		Gateway:     app.NewGateway(env.store, env.registry, env.broadcaster, env.supervisor),
		Broadcaster: env.broadcaster,
		Supervisor:  env.supervisor,
		Clock:       clock,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	env.srv = NewServer(cfg, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validToken(t *testing.T) string {
	return signToken(t, testSecret, jwt.MapClaims{"sub": "alice"})
}

func sampleSnapshot() *domain.Snapshot {
	rate := 0.01
	return &domain.Snapshot{
		Code:    "0",
		Message: "success",
		Entries: []domain.Entry{{
			Symbol:      "BTC",
			MarginListA: []domain.ExchangeQuote{{ExchangeName: "Binance", Rate: &rate}},
		}},
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

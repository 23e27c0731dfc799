package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/app"
	"github.com/CodeNoob53/funding-calculator-server/internal/broadcast"
	"github.com/CodeNoob53/funding-calculator-server/internal/cache"
	"github.com/CodeNoob53/funding-calculator-server/internal/coordination"
	"github.com/CodeNoob53/funding-calculator-server/internal/diff"
	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/heartbeat"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/config"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/logging"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/version"
	"github.com/CodeNoob53/funding-calculator-server/internal/poller"
	"github.com/CodeNoob53/funding-calculator-server/internal/redis"
	"github.com/CodeNoob53/funding-calculator-server/internal/server"
	"github.com/CodeNoob53/funding-calculator-server/internal/upstream"
	"github.com/CodeNoob53/funding-calculator-server/internal/websocket"
)

func runGracefulShutdown(srv *server.Server, stopPoller context.CancelFunc, pollerDone <-chan struct{}, supervisor *heartbeat.Supervisor) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopPoller()
		<-pollerDone

		// Close sockets first so hijacked handlers return before the server drains.
		supervisor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDiffer(cfg *config.Config) domain.Differ {
	differ, err := diff.New(cfg.DiffStrategy)
	if err != nil {
		slog.Error("Failed to create differ", "error", err)
		os.Exit(1)
	}
	return differ
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	var logFile logging.FileOptions
	if cfg.LogToFile {
		logFile = logging.DefaultFileOptions(cfg.LogFile)
	}
	logCloser := logging.InitLogger(cfg.LogLevel, cfg.LogFormat, logFile)
	defer func() { _ = logCloser.Close() }()

	info := version.Publish()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	// Snapshot store: Redis when configured, in-process otherwise
	var (
		store       domain.SnapshotStore
		redisClient *goredis.Client
	)
	if cfg.RedisURL != "" {
		redisClient = setupRedis(context.Background(), cfg)
		defer func() { _ = redisClient.Close() }()
		store = redis.NewSnapshotStore(redisClient, cfg.CacheTTL.D(), clock)
		slog.Info("Using Redis snapshot store")
	} else {
		store = cache.NewMemoryStore(cfg.CacheTTL.D(), clock)
		slog.Info("Using in-memory snapshot store")
	}

	fetcher := upstream.NewClient(upstream.Config{
		URL:         cfg.UpstreamURL,
		APIKey:      cfg.UpstreamAPIKey,
		MaxAttempts: cfg.UpstreamMaxAttempts,
	})

	registry := broadcast.NewRegistry(broadcast.UpdatesGroup)
	broadcaster := broadcast.NewBroadcaster(registry, clock)
	supervisor := heartbeat.NewSupervisor(clock, cfg.HeartbeatInterval.D(), cfg.MaxMissedPongs)
	gateway := app.NewGateway(store, registry, broadcaster, supervisor)

	pollCtx, stopPoller := context.WithCancel(context.Background())
	pollerDone := make(chan struct{})

	var poll *poller.Poller
	if redisClient != nil {
		// Shared store: one elected instance polls, every instance relays
		instanceID := uuid.NewString()
		relay := coordination.NewRelay(redisClient, broadcaster, coordination.EventsChannel)
		poll = poller.New(fetcher, store, setupDiffer(cfg), relay, clock, cfg.PollInterval.D(), cfg.UpstreamTimeout.D())
		lease := coordination.NewLease(redisClient, clock, coordination.PollerLeaseKey, instanceID, coordination.DefaultLeaseTTL)
		slog.Info("Multi-instance coordination enabled", "instance_id", instanceID)

		go func() {
			if err := relay.Run(pollCtx); err != nil {
				slog.Error("Relay stopped", "error", err)
			}
		}()
		go func() {
			defer close(pollerDone)
			lease.RunWhileLeader(pollCtx, poll.Run)
		}()
	} else {
		poll = poller.New(fetcher, store, setupDiffer(cfg), broadcaster, clock, cfg.PollInterval.D(), cfg.UpstreamTimeout.D())
		go func() {
			defer close(pollerDone)
			poll.Run(pollCtx)
		}()
	}

	deps := server.Deps{
		Store:       store,
		Refresher:   poll,
		Gateway:     gateway,
		Broadcaster: broadcaster,
		Supervisor:  supervisor,
		Clock:       clock,
	}
	// Avoid a typed-nil interface when Redis is disabled
	if redisClient != nil {
		deps.Redis = redisClient
	}

	srv := server.NewServer(server.Config{
		Port:              cfg.Port,
		Environment:       cfg.AppEnv,
		ClientURL:         cfg.ClientURL,
		JWTSecret:         cfg.JWTSecret,
		APIKey:            cfg.APIKey,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow.D(),
		MaxConnections:    int64(cfg.MaxWebSocketConnections),
		Socket: websocket.Config{
			PingInterval: cfg.SocketPingInterval.D(),
			PingTimeout:  cfg.SocketPingTimeout.D(),
		},
	}, deps)

	done := runGracefulShutdown(srv, stopPoller, pollerDone, supervisor)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

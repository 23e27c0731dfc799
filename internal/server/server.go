package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/app"
	"github.com/CodeNoob53/funding-calculator-server/internal/broadcast"
	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/heartbeat"
	apperrors "github.com/CodeNoob53/funding-calculator-server/internal/platform/errors"
	ws "github.com/CodeNoob53/funding-calculator-server/internal/websocket"
)

// Config holds the HTTP-facing settings.
type Config struct {
	Port              string
	Environment       string
	ClientURL         string
	JWTSecret         string
	APIKey            string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxConnections    int64
	Socket            ws.Config
}

func (c Config) production() bool {
	return c.Environment == "production"
}

// Refresher runs a poll on demand.
type Refresher interface {
	PollNow(ctx context.Context) *domain.Snapshot
}

// redisHealthChecker is a minimal interface for Redis health checks
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Deps are the core components the server exposes.
type Deps struct {
	Store       domain.SnapshotStore
	Refresher   Refresher
	Gateway     *app.Gateway
	Broadcaster *broadcast.Broadcaster
	Supervisor  *heartbeat.Supervisor
	Redis       redisHealthChecker
	Clock       clockwork.Clock
}

type Server struct {
	echo        *echo.Echo
	config      Config
	store       domain.SnapshotStore
	refresher   Refresher
	gateway     *app.Gateway
	broadcaster *broadcast.Broadcaster
	supervisor  *heartbeat.Supervisor
	redis       redisHealthChecker
	clock       clockwork.Clock
	startTime   time.Time
	rateLimiter *RequestRateLimiter
	connLimiter *ConnectionLimiter
	upgrader    websocket.Upgrader
}

func NewServer(cfg Config, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:        e,
		config:      cfg,
		store:       deps.Store,
		refresher:   deps.Refresher,
		gateway:     deps.Gateway,
		broadcaster: deps.Broadcaster,
		supervisor:  deps.Supervisor,
		redis:       deps.Redis,
		clock:       clock,
		startTime:   clock.Now(),
		rateLimiter: NewRequestRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, clock),
		connLimiter: NewConnectionLimiter(cfg.MaxConnections),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.ClientURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(apperrors.Middleware())

	srv.registerRoutes()

	return srv
}

// requestLogger logs one line per request through slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.DebugContext(c.Request().Context(), "HTTP request", attrs...)
			return nil
		},
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

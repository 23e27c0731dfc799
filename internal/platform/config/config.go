package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Duration accepts Go duration syntax ("20s") or bare milliseconds ("20000").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"3001"`
	ClientURL string `env:"CLIENT_URL"`
	JWTSecret string `env:"JWT_SECRET"`
	APIKey    string `env:"S_API_KEY"`

	UpstreamURL         string   `env:"UPSTREAM_URL"`
	UpstreamAPIKey      string   `env:"UPSTREAM_API_KEY"`
	UpstreamTimeout     Duration `env:"UPSTREAM_TIMEOUT" default:"5000"`
	UpstreamMaxAttempts int      `env:"UPSTREAM_MAX_ATTEMPTS" default:"2"`
	PollInterval        Duration `env:"FUNDING_UPDATE_INTERVAL" default:"20000"`
	DiffStrategy        string   `env:"DIFF_STRATEGY" default:"field"`

	CacheTTL Duration `env:"CACHE_TTL" default:"60s"`
	RedisURL string   `env:"REDIS_URL"`

	HeartbeatInterval  Duration `env:"HEARTBEAT_INTERVAL" default:"30000"`
	MaxMissedPongs     int      `env:"MAX_MISSED_PONGS" default:"3"`
	SocketPingInterval Duration `env:"SOCKET_PING_INTERVAL" default:"10000"`
	SocketPingTimeout  Duration `env:"SOCKET_PING_TIMEOUT" default:"30000"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW" default:"15m"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	LogToFile bool   `env:"LOG_TO_FILE" default:"false"`
	LogFile   string `env:"LOG_FILE" default:"logs/app.log"`
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"UPSTREAM_URL", cfg.UpstreamURL},
		{"UPSTREAM_API_KEY", cfg.UpstreamAPIKey},
		{"CLIENT_URL", cfg.ClientURL},
		{"JWT_SECRET", cfg.JWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if u, err := url.Parse(cfg.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute URL, got %q", cfg.UpstreamURL)
	}

	switch cfg.DiffStrategy {
	case "field", "hash":
	default:
		return fmt.Errorf("DIFF_STRATEGY must be field or hash, got %q", cfg.DiffStrategy)
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"FUNDING_UPDATE_INTERVAL", cfg.PollInterval.D()},
		{"UPSTREAM_TIMEOUT", cfg.UpstreamTimeout.D()},
		{"CACHE_TTL", cfg.CacheTTL.D()},
		{"HEARTBEAT_INTERVAL", cfg.HeartbeatInterval.D()},
		{"SOCKET_PING_INTERVAL", cfg.SocketPingInterval.D()},
		{"SOCKET_PING_TIMEOUT", cfg.SocketPingTimeout.D()},
		{"RATE_LIMIT_WINDOW", cfg.RateLimitWindow.D()},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}

	if cfg.UpstreamMaxAttempts < 1 {
		return errors.New("UPSTREAM_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.MaxMissedPongs < 1 {
		return errors.New("MAX_MISSED_PONGS must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.RateLimitRequests < 1 {
		return errors.New("RATE_LIMIT_REQUESTS must be at least 1")
	}

	return nil
}

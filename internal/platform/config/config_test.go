package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "https://open-api.example.com/api/pro/v1/futures/funding_rates_chart")
	t.Setenv("UPSTREAM_API_KEY", "test-upstream-key")
	t.Setenv("CLIENT_URL", "http://localhost:5173")
	t.Setenv("JWT_SECRET", "test-jwt-secret")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-upstream-key", cfg.UpstreamAPIKey)
	assert.Equal(t, "http://localhost:5173", cfg.ClientURL)
	assert.Equal(t, "test-jwt-secret", cfg.JWTSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.PollInterval.D())
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout.D())
	assert.Equal(t, 2, cfg.UpstreamMaxAttempts)
	assert.Equal(t, time.Minute, cfg.CacheTTL.D())
	assert.Equal(t, "field", cfg.DiffStrategy)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval.D())
	assert.Equal(t, 3, cfg.MaxMissedPongs)
	assert.Equal(t, 10*time.Second, cfg.SocketPingInterval.D())
	assert.Equal(t, 30*time.Second, cfg.SocketPingTimeout.D())
	assert.Equal(t, 10000, cfg.MaxWebSocketConnections)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow.D())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.LogToFile)
	assert.Equal(t, "logs/app.log", cfg.LogFile)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.APIKey)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing UPSTREAM_URL", "UPSTREAM_URL", "UPSTREAM_URL is required"},
		{"missing UPSTREAM_API_KEY", "UPSTREAM_API_KEY", "UPSTREAM_API_KEY is required"},
		{"missing CLIENT_URL", "CLIENT_URL", "CLIENT_URL is required"},
		{"missing JWT_SECRET", "JWT_SECRET", "JWT_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_DurationsAcceptMillisecondsAndGoSyntax(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FUNDING_UPDATE_INTERVAL", "15000")
	t.Setenv("HEARTBEAT_INTERVAL", "45s")
	t.Setenv("CACHE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.PollInterval.D())
	assert.Equal(t, 45*time.Second, cfg.HeartbeatInterval.D())
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL.D())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"relative upstream url", "UPSTREAM_URL", "/funding", "UPSTREAM_URL must be an absolute URL"},
		{"unknown diff strategy", "DIFF_STRATEGY", "magic", "DIFF_STRATEGY must be field or hash"},
		{"zero poll interval", "FUNDING_UPDATE_INTERVAL", "0", "FUNDING_UPDATE_INTERVAL must be positive"},
		{"negative cache ttl", "CACHE_TTL", "-5s", "CACHE_TTL must be positive"},
		{"zero attempts", "UPSTREAM_MAX_ATTEMPTS", "0", "UPSTREAM_MAX_ATTEMPTS must be at least 1"},
		{"zero missed pongs", "MAX_MISSED_PONGS", "0", "MAX_MISSED_PONGS must be at least 1"},
		{"zero connection cap", "MAX_WEBSOCKET_CONNECTIONS", "0", "MAX_WEBSOCKET_CONNECTIONS must be at least 1"},
		{"zero rate limit", "RATE_LIMIT_REQUESTS", "0", "RATE_LIMIT_REQUESTS must be at least 1"},
		{"unparsable duration", "HEARTBEAT_INTERVAL", "soon", "failed to load environment variables"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Production(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"20000", 20 * time.Second, false},
		{" 250 ", 250 * time.Millisecond, false},
		{"1m30s", 90 * time.Second, false},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.D())
		})
	}
}

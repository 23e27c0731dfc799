package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/platform/version"
)

var (
	errNoSnapshot       = errors.New("no snapshot cached")
	errSnapshotDegraded = errors.New("upstream feed degraded")
)

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, "Funding Server is running...")
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"snapshot", s.checkSnapshot},
		{"redis", s.checkRedis},
	}

	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			return writeJSON(c, http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.name,
				"error":        err.Error(),
			})
		}
	}

	return writeJSON(c, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) checkSnapshot(ctx context.Context) error {
	snapshot, ok := s.store.Get(ctx)
	if !ok {
		return errNoSnapshot
	}
	if snapshot.Degraded() {
		return errSnapshotDegraded
	}
	return nil
}

func (s *Server) checkRedis(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	apperrors "github.com/CodeNoob53/funding-calculator-server/internal/platform/errors"
	ws "github.com/CodeNoob53/funding-calculator-server/internal/websocket"
)

// checkOrigin admits browsers from CLIENT_URL and non-browser clients that send no Origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.config.ClientURL == "*" {
		return true
	}
	return strings.EqualFold(strings.TrimSuffix(origin, "/"), strings.TrimSuffix(s.config.ClientURL, "/"))
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	subject, err := s.authenticateSocket(c.Request())
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("unauthorized").Inc()
		if errors.Is(err, errMissingCredentials) {
			return apperrors.UnauthorizedError("authentication required")
		}
		return apperrors.ForbiddenError("authentication failed", err)
	}

	if !s.connLimiter.Acquire() {
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return apperrors.UnavailableError("connection limit reached", nil).
			WithContext("current", s.connLimiter.Current())
	}
	defer s.connLimiter.Release()

	socket, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		metrics.WebSocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		slog.WarnContext(ctx, "WebSocket upgrade failed", "error", err, "remote_ip", c.RealIP())
		return nil
	}

	conn := ws.NewConn(socket, s.clock, s.config.Socket, subject, c.RealIP())
	s.gateway.Connect(ctx, conn)

	// Read pump blocks until the connection closes
	conn.Serve(s.gateway)
	return nil
}

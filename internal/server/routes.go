package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	api := s.echo.Group("/api", s.rateLimit, s.requireAuth)
	api.GET("/proxy/funding-rates", s.handleFundingRates)
	api.GET("/monitoring/connections", s.handleConnections)
	api.GET("/monitoring/health", s.handleMonitoringHealth)
	api.POST("/monitoring/broadcast-test", s.handleBroadcastTest)

	// WebSocket authenticates during the handshake
	s.echo.GET("/ws", s.handleWebSocket)
}

package server

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/heartbeat"
	apperrors "github.com/CodeNoob53/funding-calculator-server/internal/platform/errors"
)

const (
	defaultTestMessage = "test broadcast from monitoring endpoint"
	maxTestMessageLen  = 500
)

type connectionsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	heartbeat.Stats
}

type healthResponse struct {
	Status      string             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Uptime      uptimeReport       `json:"uptime"`
	Memory      memoryReport       `json:"memory"`
	CPU         cpuReport          `json:"cpu"`
	Environment string             `json:"environment"`
	WebSocket   *heartbeat.Summary `json:"websocket"`
	Cache       cacheReport        `json:"cache"`
}

type uptimeReport struct {
	Process float64 `json:"process"`
}

type memoryReport struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapInuse  uint64 `json:"heapInuse"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

type cpuReport struct {
	CPUs       int    `json:"cpus"`
	GoMaxProcs int    `json:"goMaxProcs"`
	GoVersion  string `json:"goVersion"`
}

type cacheReport struct {
	Backend  string `json:"backend"`
	HasData  bool   `json:"hasData"`
	Degraded bool   `json:"degraded"`
	Size     int    `json:"size"`
	AgeMs    int64  `json:"ageMs"`
	TTLMs    int64  `json:"ttlMs"`
}

type broadcastTestRequest struct {
	Message string `json:"message"`
}

type broadcastTestResponse struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	RecipientsCount int       `json:"recipientsCount"`
	Timestamp       time.Time `json:"timestamp"`
}

func (s *Server) handleConnections(c echo.Context) error {
	stats := s.supervisor.SnapshotAll()
	slog.InfoContext(c.Request().Context(), "Connection stats requested",
		"connections", stats.Summary.TotalConnections)

	return writeJSON(c, http.StatusOK, connectionsResponse{
		Timestamp: s.clock.Now().UTC(),
		Stats:     stats,
	})
}

func (s *Server) handleMonitoringHealth(c echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	summary := s.supervisor.SnapshotAll().Summary
	info := s.store.Info(c.Request().Context())

	return writeJSON(c, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: s.clock.Now().UTC(),
		Uptime:    uptimeReport{Process: s.clock.Since(s.startTime).Seconds()},
		Memory: memoryReport{
			HeapAlloc:  mem.HeapAlloc,
			HeapInuse:  mem.HeapInuse,
			Sys:        mem.Sys,
			NumGC:      mem.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
		CPU: cpuReport{
			CPUs:       runtime.NumCPU(),
			GoMaxProcs: runtime.GOMAXPROCS(0),
			GoVersion:  runtime.Version(),
		},
		Environment: s.config.Environment,
		WebSocket:   &summary,
		Cache: cacheReport{
			Backend:  info.Backend,
			HasData:  info.HasData,
			Degraded: info.Degraded,
			Size:     info.Entries,
			AgeMs:    info.Age.Milliseconds(),
			TTLMs:    info.TTL.Milliseconds(),
		},
	})
}

func (s *Server) handleBroadcastTest(c echo.Context) error {
	if s.config.production() {
		return apperrors.ForbiddenError("test broadcast is disabled in production", nil)
	}

	var req broadcastTestRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperrors.ValidationError("invalid request body")
		}
	}
	if len(req.Message) > maxTestMessageLen {
		return apperrors.ValidationError("message too long").WithContext("max", maxTestMessageLen)
	}
	if req.Message == "" {
		req.Message = defaultTestMessage
	}

	recipients := s.broadcaster.SendTest(req.Message)
	slog.InfoContext(c.Request().Context(), "Test broadcast sent", "recipients", recipients)

	return writeJSON(c, http.StatusOK, broadcastTestResponse{
		Success:         true,
		Message:         "test message sent",
		RecipientsCount: recipients,
		Timestamp:       s.clock.Now().UTC(),
	})
}

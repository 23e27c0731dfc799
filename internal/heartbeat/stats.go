package heartbeat

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Stats is an on-demand view of every supervised connection.
type Stats struct {
	Summary     Summary           `json:"summary"`
	Connections []ConnectionStats `json:"connections"`
}

type Summary struct {
	TotalConnections      int     `json:"totalConnections"`
	SubscribedConnections int     `json:"subscribedConnections"`
	HeartbeatIntervalMs   int64   `json:"heartbeatInterval"`
	MaxMissedPongs        int     `json:"maxMissedPongs"`
	AverageLatencyMs      float64 `json:"averageLatency"`
}

// ConnectionStats is the read-only view of one connection record.
type ConnectionStats struct {
	ID                string     `json:"id"`
	RemoteAddr        string     `json:"remoteAddress"`
	ConnectedAt       time.Time  `json:"connectedAt"`
	DurationMs        int64      `json:"connectionDuration"`
	LastPingAt        *time.Time `json:"lastPing,omitempty"`
	LastPongAt        *time.Time `json:"lastPong,omitempty"`
	PingCount         int        `json:"pingCount"`
	PongCount         int        `json:"pongCount"`
	MissedPongs       int        `json:"missedPongs"`
	AverageLatencyMs  *float64   `json:"averageLatency"` // nil until the first pong
	RecentLatenciesMs []int64    `json:"latencies"`
	Subscribed        bool       `json:"isSubscribed"`
	State             State      `json:"state"`
}

// SnapshotAll computes the current stats. It never mutates any record.
func (s *Supervisor) SnapshotAll() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Summary: Summary{
			TotalConnections:    len(s.records),
			HeartbeatIntervalMs: s.interval.Milliseconds(),
			MaxMissedPongs:      s.maxMissed,
			AverageLatencyMs:    s.averageLatencyLocked(),
		},
		Connections: make([]ConnectionStats, 0, len(s.records)),
	}

	for _, rec := range s.records {
		if rec.subscribed {
			stats.Summary.SubscribedConnections++
		}
		stats.Connections = append(stats.Connections, s.viewLocked(rec))
	}

	slices.SortFunc(stats.Connections, func(a, b ConnectionStats) int {
		return cmp.Or(a.ConnectedAt.Compare(b.ConnectedAt), strings.Compare(a.ID, b.ID))
	})
	return stats
}

// Get returns the stats of one connection.
func (s *Supervisor) Get(id string) (ConnectionStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ConnectionStats{}, false
	}
	return s.viewLocked(rec), true
}

// AverageLatency is the mean of the per-connection averages of connections
// that have answered at least one ping, in milliseconds.
func (s *Supervisor) AverageLatency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageLatencyLocked()
}

func (s *Supervisor) averageLatencyLocked() float64 {
	var sum float64
	n := 0
	for _, rec := range s.records {
		if rec.latencies.n == 0 {
			continue
		}
		sum += rec.latencies.average()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (s *Supervisor) viewLocked(rec *record) ConnectionStats {
	view := ConnectionStats{
		ID:                rec.conn.ID(),
		RemoteAddr:        rec.conn.RemoteAddr(),
		ConnectedAt:       rec.connectedAt,
		DurationMs:        s.clock.Since(rec.connectedAt).Milliseconds(),
		PingCount:         rec.pingCount,
		PongCount:         rec.pongCount,
		MissedPongs:       rec.missedPongs,
		RecentLatenciesMs: rec.latencies.values(),
		Subscribed:        rec.subscribed,
		State:             rec.state,
	}
	if rec.latencies.n > 0 {
		avg := rec.latencies.average()
		view.AverageLatencyMs = &avg
	}
	if !rec.lastPingAt.IsZero() {
		t := rec.lastPingAt
		view.LastPingAt = &t
	}
	if !rec.lastPongAt.IsZero() {
		t := rec.lastPongAt
		view.LastPongAt = &t
	}
	return view
}

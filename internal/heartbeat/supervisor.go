package heartbeat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultMaxMissedPongs = 3

	latencyWindow = 10
)

// State is the heartbeat state of one connection.
type State string

const (
	StateActive       State = "ACTIVE"
	StateAwaitingPong State = "AWAITING_PONG"
	StateClosed       State = "CLOSED"
)

// PingPayload is sent with every ping and expected back in the pong.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type pongPayload struct {
	Timestamp *float64 `json:"timestamp"`
}

type record struct {
	conn        domain.Connection
	connectedAt time.Time
	lastPingAt  time.Time
	lastPongAt  time.Time
	pingCount   int
	pongCount   int
	missedPongs int
	latencies   ring
	subscribed  bool
	state       State

	done     chan struct{}
	stopOnce sync.Once
}

func (r *record) stopTimer() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Supervisor owns the heartbeat record and timer of every connection.
type Supervisor struct {
	clock     clockwork.Clock
	interval  time.Duration
	maxMissed int

	mu      sync.Mutex
	records map[string]*record
	wg      sync.WaitGroup
}

// NewSupervisor creates a Supervisor. Non-positive values fall back to the defaults.
func NewSupervisor(clock clockwork.Clock, interval time.Duration, maxMissed int) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxMissed <= 0 {
		maxMissed = DefaultMaxMissedPongs
	}
	return &Supervisor{
		clock:     clock,
		interval:  interval,
		maxMissed: maxMissed,
		records:   make(map[string]*record),
	}
}

// Add starts supervising conn. Adding an already supervised id is a no-op.
func (s *Supervisor) Add(conn domain.Connection) {
	s.mu.Lock()
	if _, exists := s.records[conn.ID()]; exists {
		s.mu.Unlock()
		return
	}
	rec := &record{
		conn:        conn,
		connectedAt: s.clock.Now(),
		state:       StateActive,
		done:        make(chan struct{}),
	}
	s.records[conn.ID()] = rec
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(rec)

	slog.Debug("Heartbeat started", "conn_id", conn.ID(), "interval", s.interval)
}

func (s *Supervisor) run(rec *record) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rec.done:
			return
		case <-ticker.Chan():
			if !s.beat(rec.conn.ID()) {
				return
			}
		}
	}
}

// beat runs one heartbeat cycle. Returns false once the connection's timer
// must stop.
func (s *Supervisor) beat(id string) bool {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.state == StateClosed {
		s.mu.Unlock()
		return false
	}

	if rec.state == StateAwaitingPong {
		rec.missedPongs++
		metrics.HeartbeatMissedPongsTotal.Inc()

		if rec.missedPongs >= s.maxMissed {
			rec.state = StateClosed
			missed := rec.missedPongs
			s.mu.Unlock()

			rec.stopTimer()
			slog.Warn("Heartbeat timeout, closing connection",
				"conn_id", id, "missed_pongs", missed, "max_missed_pongs", s.maxMissed)
			metrics.HeartbeatForcedDisconnects.Inc()
			rec.conn.Disconnect(true)
			return false
		}
		slog.Debug("Missed pong", "conn_id", id, "missed_pongs", rec.missedPongs)
	}

	now := s.clock.Now()
	rec.lastPingAt = now
	rec.pingCount++
	rec.state = StateAwaitingPong
	conn := rec.conn
	s.mu.Unlock()

	metrics.HeartbeatPingsTotal.Inc()
	if err := conn.Send(domain.EventPing, PingPayload{Timestamp: now.UnixMilli()}); err != nil {
		slog.Debug("Heartbeat ping send failed", "conn_id", id, "error", err)
	}
	return true
}

// HandlePong records a pong carrying the timestamp of the ping it answers.
// Malformed payloads are logged and ignored without touching any counter.
func (s *Supervisor) HandlePong(id string, data json.RawMessage) error {
	var payload pongPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Timestamp == nil {
		slog.Warn("Ignoring malformed pong", "conn_id", id, "payload", string(data))
		return fmt.Errorf("%w: pong without numeric timestamp", domain.ErrMalformedMessage)
	}

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.state == StateClosed {
		s.mu.Unlock()
		return domain.ErrUnknownConnection
	}

	now := s.clock.Now()
	latency := max(now.UnixMilli()-int64(*payload.Timestamp), 0)

	rec.latencies.push(latency)
	rec.lastPongAt = now
	rec.missedPongs = 0
	rec.pongCount++
	rec.state = StateActive
	avg := s.averageLatencyLocked()
	s.mu.Unlock()

	metrics.HeartbeatPongsTotal.Inc()
	metrics.HeartbeatLatency.Observe(float64(latency) / 1000)
	metrics.HeartbeatLatencyAverage.Set(avg)
	return nil
}

// SetSubscribed records the subscription state shown in stats.
func (s *Supervisor) SetSubscribed(id string, subscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.subscribed = subscribed
	}
}

// Remove stops the connection's timer, logs its final session stats and
// discards the record. Removing an unknown id is a no-op.
func (s *Supervisor) Remove(id, reason string) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.records, id)
	stats := s.viewLocked(rec)
	sessionLatency := rec.latencies.average()
	avg := s.averageLatencyLocked()
	s.mu.Unlock()

	rec.stopTimer()
	metrics.HeartbeatLatencyAverage.Set(avg)

	slog.Info("Connection session ended",
		"conn_id", id,
		"reason", reason,
		"duration", time.Duration(stats.DurationMs)*time.Millisecond,
		"pings", stats.PingCount,
		"pongs", stats.PongCount,
		"avg_latency_ms", sessionLatency,
		"subscribed", stats.Subscribed,
	)
}

// Stop ends every timer and closes every supervised connection.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		rec.state = StateClosed
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	for _, rec := range recs {
		rec.stopTimer()
		rec.conn.Disconnect(false)
	}
	s.wg.Wait()

	slog.Info("Heartbeat supervisor stopped", "connections", len(recs))
}

// Interval returns the heartbeat period.
func (s *Supervisor) Interval() time.Duration { return s.interval }

// MaxMissedPongs returns the forced-close threshold.
func (s *Supervisor) MaxMissedPongs() int { return s.maxMissed }

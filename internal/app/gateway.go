package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/CodeNoob53/funding-calculator-server/internal/broadcast"
	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/heartbeat"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	"github.com/CodeNoob53/funding-calculator-server/internal/platform/correlation"
)

// SubscriptionAck is sent after a subscribe or unsubscribe request.
type SubscriptionAck struct {
	Group string `json:"group"`
}

// Gateway implements domain.ConnectionHandler.
type Gateway struct {
	store       domain.SnapshotStore
	registry    *broadcast.Registry
	broadcaster *broadcast.Broadcaster
	supervisor  *heartbeat.Supervisor

	active atomic.Int64
}

var _ domain.ConnectionHandler = (*Gateway)(nil)

func NewGateway(store domain.SnapshotStore, registry *broadcast.Registry, broadcaster *broadcast.Broadcaster, supervisor *heartbeat.Supervisor) *Gateway {
	return &Gateway{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		supervisor:  supervisor,
	}
}

// Connect admits a newly authenticated connection.
func (g *Gateway) Connect(ctx context.Context, conn domain.Connection) {
	ctx = correlation.WithConnID(ctx, conn.ID())

	g.supervisor.Add(conn)
	n := g.active.Add(1)
	metrics.WebSocketConnectionsCurrent.Set(float64(n))
	metrics.WebSocketConnectionsTotal.WithLabelValues("accepted").Inc()

	slog.InfoContext(ctx, "Client connected",
		"remote_addr", conn.RemoteAddr(), "subject", conn.Subject(), "active", n)

	snapshot, _ := g.store.Get(ctx)
	if err := g.broadcaster.SendInitial(conn, snapshot); err != nil {
		slog.WarnContext(ctx, "Failed to send initial data", "error", err)
	}
}

func (g *Gateway) OnEvent(conn domain.Connection, event string, data json.RawMessage) {
	ctx := correlation.WithConnID(context.Background(), conn.ID())

	switch event {
	case domain.EventSubscribe:
		if !isObjectOrEmpty(data) {
			g.malformed(ctx, event, data)
			return
		}
		if g.registry.Subscribe(conn) {
			g.supervisor.SetSubscribed(conn.ID(), true)
			slog.InfoContext(ctx, "Client subscribed to updates", "subscribers", g.registry.Len())
		}
		g.ack(ctx, conn, domain.EventSubscribed)

	case domain.EventUnsubscribe:
		if !isObjectOrEmpty(data) {
			g.malformed(ctx, event, data)
			return
		}
		if g.registry.Unsubscribe(conn.ID()) {
			g.supervisor.SetSubscribed(conn.ID(), false)
			slog.InfoContext(ctx, "Client unsubscribed from updates", "subscribers", g.registry.Len())
		}
		g.ack(ctx, conn, domain.EventUnsubscribed)

	case domain.EventPong:
		if err := g.supervisor.HandlePong(conn.ID(), data); err != nil {
			metrics.WebSocketMalformedMessages.WithLabelValues(event).Inc()
		}

	default:
		slog.WarnContext(ctx, "Ignoring unknown client event", "event", event)
		metrics.WebSocketMalformedMessages.WithLabelValues("unknown").Inc()
	}
}

func (g *Gateway) OnDisconnect(conn domain.Connection, reason string) {
	ctx := correlation.WithConnID(context.Background(), conn.ID())

	g.registry.Unsubscribe(conn.ID())
	g.supervisor.Remove(conn.ID(), reason)

	n := g.active.Add(-1)
	metrics.WebSocketConnectionsCurrent.Set(float64(n))
	slog.InfoContext(ctx, "Client disconnected", "reason", reason, "active", n)
}

// Active returns the number of connected clients.
func (g *Gateway) Active() int {
	return int(g.active.Load())
}

func (g *Gateway) ack(ctx context.Context, conn domain.Connection, event string) {
	if err := conn.Send(event, SubscriptionAck{Group: g.registry.Group()}); err != nil {
		slog.DebugContext(ctx, "Failed to send acknowledgement", "event", event, "error", err)
	}
}

func (g *Gateway) malformed(ctx context.Context, event string, data json.RawMessage) {
	slog.WarnContext(ctx, "Ignoring malformed client message", "event", event, "payload", string(data))
	metrics.WebSocketMalformedMessages.WithLabelValues(event).Inc()
}

func isObjectOrEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	return trimmed[0] == '{' && json.Valid(trimmed)
}

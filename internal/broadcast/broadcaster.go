package broadcast

import (
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// TestMessage is the payload of the monitoring test broadcast.
type TestMessage struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Broadcaster fans events out to the members of a Registry.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
}

var _ domain.ChangeBroadcaster = (*Broadcaster)(nil)

func NewBroadcaster(registry *Registry, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: registry, clock: clock}
}

// Broadcast sends changeset as a fundingUpdate event to every member and
// returns how many sends succeeded. Empty changesets are not sent.
func (b *Broadcaster) Broadcast(changeset *domain.Changeset) int {
	if changeset.Empty() {
		metrics.BroadcastSuppressedTotal.Inc()
		return 0
	}
	metrics.ChangesetEntries.Observe(float64(len(changeset.Entries)))
	return b.fanOut(domain.EventFundingUpdate, changeset)
}

// BroadcastStatus sends a feedStatus event to every member.
func (b *Broadcaster) BroadcastStatus(status domain.FeedStatus) int {
	return b.fanOut(domain.EventFeedStatus, status)
}

// SendTest sends a testMessage event to every member and returns the number
// of members at call time.
func (b *Broadcaster) SendTest(message string) int {
	payload := TestMessage{
		Message:   message,
		Timestamp: b.clock.Now().UnixMilli(),
		Source:    "monitoring",
	}
	members := b.registry.Members()
	b.send(members, domain.EventTestMessage, payload)
	return len(members)
}

// SendInitial sends the full snapshot to a newly connected client. Nothing is
// sent when there is no snapshot yet.
func (b *Broadcaster) SendInitial(conn domain.Connection, snapshot *domain.Snapshot) error {
	if snapshot == nil {
		slog.Debug("No snapshot available, skipping initial data", "conn_id", conn.ID())
		return nil
	}
	if err := conn.Send(domain.EventInitialData, snapshot); err != nil {
		metrics.BroadcastSendsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.BroadcastSendsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (b *Broadcaster) fanOut(event string, payload any) int {
	return b.send(b.registry.Members(), event, payload)
}

// send encodes payload once and hands the same bytes to every member.
func (b *Broadcaster) send(members []domain.Connection, event string, payload any) int {
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
	if len(members) == 0 {
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal broadcast payload", "event", event, "error", err)
		return 0
	}
	raw := json.RawMessage(data)

	delivered := 0
	for _, conn := range members {
		if err := conn.Send(event, raw); err != nil {
			slog.Warn("Broadcast send failed", "event", event, "conn_id", conn.ID(), "error", err)
			metrics.BroadcastSendsTotal.WithLabelValues("failed").Inc()
			continue
		}
		metrics.BroadcastSendsTotal.WithLabelValues("ok").Inc()
		delivered++
	}

	slog.Debug("Broadcast complete", "event", event, "members", len(members), "delivered", delivered)
	return delivered
}

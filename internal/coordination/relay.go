package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const (
	EventsChannel  = "funding:events"
	publishTimeout = 2 * time.Second
)

// RelayClient is the subset of the Redis client the relay uses.
type RelayClient interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// envelope is the wire format on the events channel.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay publishes poll results to every instance instead of broadcasting them
// locally. Each instance runs Relay.Run to deliver received events to its own
// subscribers through the local broadcaster.
type Relay struct {
	rdb     RelayClient
	local   domain.ChangeBroadcaster
	channel string
}

var _ domain.ChangeBroadcaster = (*Relay)(nil)

// NewRelay creates a relay on channel. Empty channel uses EventsChannel.
func NewRelay(rdb RelayClient, local domain.ChangeBroadcaster, channel string) *Relay {
	if channel == "" {
		channel = EventsChannel
	}
	return &Relay{rdb: rdb, local: local, channel: channel}
}

// Broadcast publishes changeset to all instances and returns the number of
// instances that received it. Empty changesets go straight to the local
// broadcaster, which suppresses them.
func (r *Relay) Broadcast(changeset *domain.Changeset) int {
	if changeset.Empty() {
		return r.local.Broadcast(changeset)
	}
	n, err := r.publish(domain.EventFundingUpdate, changeset)
	if err != nil {
		slog.Warn("Relay publish failed, delivering locally", "event", domain.EventFundingUpdate, "error", err)
		return r.local.Broadcast(changeset)
	}
	return n
}

// BroadcastStatus publishes status to all instances.
func (r *Relay) BroadcastStatus(status domain.FeedStatus) int {
	n, err := r.publish(domain.EventFeedStatus, status)
	if err != nil {
		slog.Warn("Relay publish failed, delivering locally", "event", domain.EventFeedStatus, "error", err)
		return r.local.BroadcastStatus(status)
	}
	return n
}

func (r *Relay) publish(event string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(envelope{Event: event, Payload: data})
	if err != nil {
		return 0, fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	receivers, err := r.rdb.Publish(ctx, r.channel, msg).Result()
	if err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("publish_failed", event).Inc()
		return 0, err
	}
	metrics.RelayMessagesTotal.WithLabelValues("published", event).Inc()
	return int(receivers), nil
}

// Run subscribes to the events channel and delivers every message to the
// local broadcaster until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription confirmation so no event is missed after Run starts.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	slog.Info("Relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch([]byte(msg.Payload))
		}
	}
}

// dispatch decodes one relayed message and hands it to the local broadcaster.
func (r *Relay) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Dropping malformed relay message", "error", err)
		metrics.RelayMessagesTotal.WithLabelValues("dropped", "malformed").Inc()
		return
	}

	switch env.Event {
	case domain.EventFundingUpdate:
		var cs domain.Changeset
		if err := json.Unmarshal(env.Payload, &cs); err != nil {
			slog.Warn("Dropping malformed changeset", "error", err)
			metrics.RelayMessagesTotal.WithLabelValues("dropped", env.Event).Inc()
			return
		}
		metrics.RelayMessagesTotal.WithLabelValues("received", env.Event).Inc()
		r.local.Broadcast(&cs)
	case domain.EventFeedStatus:
		var status domain.FeedStatus
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			slog.Warn("Dropping malformed feed status", "error", err)
			metrics.RelayMessagesTotal.WithLabelValues("dropped", env.Event).Inc()
			return
		}
		metrics.RelayMessagesTotal.WithLabelValues("received", env.Event).Inc()
		r.local.BroadcastStatus(status)
	default:
		slog.Warn("Dropping relay message with unknown event", "event", env.Event)
		metrics.RelayMessagesTotal.WithLabelValues("dropped", "unknown").Inc()
	}
}

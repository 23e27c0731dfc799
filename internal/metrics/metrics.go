package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poller Metrics
var (
	// PollsTotal tracks poll ticks by outcome (success, failure, skipped)
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funding_polls_total",
			Help: "Total upstream poll ticks by outcome",
		},
		[]string{"outcome"},
	)

	// PollDuration tracks the full update-and-broadcast cycle in seconds
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "funding_poll_duration_seconds",
			Help:    "Duration of one poll tick including fetch, diff and broadcast",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// SnapshotEntries tracks the number of entries in the stored snapshot
	SnapshotEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "funding_snapshot_entries",
			Help: "Number of symbols in the current snapshot",
		},
	)

	// FeedDegraded is 1 while the stored snapshot is the degraded sentinel
	FeedDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "funding_feed_degraded",
			Help: "1 if the current snapshot is the degraded sentinel, 0 otherwise",
		},
	)

	// ChangesetEntries tracks the size of emitted changesets
	ChangesetEntries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "funding_changeset_entries",
			Help:    "Number of entries per emitted changeset",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// DiffSkippedTotal tracks malformed input skipped by the differ
	DiffSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funding_diff_skipped_total",
			Help: "Malformed entries or quotes skipped while diffing",
		},
		[]string{"kind"},
	)
)

// Upstream Metrics
var (
	// UpstreamRequestsTotal tracks upstream fetch attempts by status
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total upstream fetch attempts by status",
		},
		[]string{"status"},
	)

	// UpstreamRequestDuration tracks upstream HTTP latency in seconds
	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream HTTP request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)
)

// Broadcaster Metrics
var (
	// BroadcastsTotal tracks broadcasts by event type
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcaster_broadcasts_total",
			Help: "Total broadcasts by event",
		},
		[]string{"event"},
	)

	// BroadcastSuppressedTotal tracks empty changesets that were not sent
	BroadcastSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_suppressed_total",
			Help: "Empty changesets suppressed by the broadcaster",
		},
	)

	// BroadcastSendsTotal tracks per-connection sends by status
	BroadcastSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcaster_sends_total",
			Help: "Per-connection broadcast sends by status",
		},
		[]string{"status"},
	)

	// SubscribedConnections tracks members of the updates group
	SubscribedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_subscribed_connections",
			Help: "Number of subscribed WebSocket connections",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result",
		},
		[]string{"result"},
	)

	// WebSocketMessageSendDuration tracks frame write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one WebSocket message",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// WebSocketConnectionDuration tracks connection lifetime
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection lifetime in seconds",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
		},
	)

	// WebSocketPingFailures tracks transport-level ping write failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Transport-level ping frames that failed to write",
		},
	)

	// WebSocketMalformedMessages tracks inbound messages that could not be handled
	WebSocketMalformedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_malformed_messages_total",
			Help: "Inbound messages ignored as malformed, by event",
		},
		[]string{"event"},
	)
)

// Heartbeat Metrics
var (
	// HeartbeatPingsTotal tracks application-level pings sent
	HeartbeatPingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_pings_total",
			Help: "Application heartbeat pings sent",
		},
	)

	// HeartbeatPongsTotal tracks valid pongs received
	HeartbeatPongsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_pongs_total",
			Help: "Valid application heartbeat pongs received",
		},
	)

	// HeartbeatMissedPongsTotal tracks heartbeat cycles without a pong
	HeartbeatMissedPongsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_missed_pongs_total",
			Help: "Heartbeat cycles that ended without a pong",
		},
	)

	// HeartbeatForcedDisconnects tracks connections closed for missing pongs
	HeartbeatForcedDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heartbeat_forced_disconnects_total",
			Help: "Connections force-closed after reaching the missed pong limit",
		},
	)

	// HeartbeatLatency tracks ping round-trip latency in seconds
	HeartbeatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_heartbeat_latency_seconds",
			Help:    "Application heartbeat round-trip latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// HeartbeatLatencyAverage is the mean of per-connection average latencies in milliseconds
	HeartbeatLatencyAverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_heartbeat_latency_avg",
			Help: "Average WebSocket heartbeat latency in milliseconds",
		},
	)
)

// Coordination Metrics
var (
	// PollerLeader is 1 while this instance holds the poller lease
	PollerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_leader",
			Help: "Whether this instance holds the poller lease (1) or not (0)",
		},
	)

	// LeaseTransitionsTotal counts lease acquisitions and losses
	LeaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_lease_transitions_total",
			Help: "Total poller lease transitions",
		},
		[]string{"transition"}, // acquired, lost, released
	)

	// RelayMessagesTotal counts events crossing the Redis relay channel
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Total broadcast events published to or received from the relay channel",
		},
		[]string{"direction", "event"}, // direction: published, received, publish_failed, dropped
	)
)

// HTTP Metrics
var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)

	// RateLimitedRequestsTotal counts requests rejected by the HTTP rate limiter
	RateLimitedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_requests_total",
			Help: "Total HTTP requests rejected by the rate limiter",
		},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

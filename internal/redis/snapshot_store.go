package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const snapshotKey = "funding:snapshot"

// storedSnapshot is the value under snapshotKey. StoredAt lets readers reject
// a value older than the TTL even when Redis itself did not expire it, e.g.
// when the circuit breaker answers from its last read.
type storedSnapshot struct {
	StoredAt int64            `json:"storedAt"`
	Snapshot *domain.Snapshot `json:"snapshot"`
}

// SnapshotStore keeps the current snapshot under a single Redis key with an
// expiry, so several replicas can serve HTTP reads from one slot.
// Redis failures are never surfaced: a failed read is a miss and a failed
// write is logged.
type SnapshotStore struct {
	rdb   goredis.Cmdable
	ttl   time.Duration
	clock clockwork.Clock
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a store writing with the given TTL.
func NewSnapshotStore(rdb goredis.Cmdable, ttl time.Duration, clock clockwork.Clock) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: ttl, clock: clock}
}

func (s *SnapshotStore) Get(ctx context.Context) (*domain.Snapshot, bool) {
	stored, ok := s.read(ctx)
	if !ok {
		return nil, false
	}
	return stored.Snapshot, true
}

// read returns the stored value if it exists and is younger than the TTL.
func (s *SnapshotStore) read(ctx context.Context) (storedSnapshot, bool) {
	data, err := s.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return storedSnapshot{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "Redis snapshot GET failed, treating as miss", "error", err)
		return storedSnapshot{}, false
	}

	var stored storedSnapshot
	if err := json.Unmarshal(data, &stored); err != nil || stored.Snapshot == nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached snapshot, treating as miss", "error", err)
		return storedSnapshot{}, false
	}

	if s.clock.Since(time.UnixMilli(stored.StoredAt)) >= s.ttl {
		slog.DebugContext(ctx, "Cached snapshot older than TTL, treating as miss", "stored_at", stored.StoredAt)
		return storedSnapshot{}, false
	}
	return stored, true
}

func (s *SnapshotStore) Set(ctx context.Context, snapshot *domain.Snapshot) {
	encoded, err := json.Marshal(storedSnapshot{StoredAt: s.clock.Now().UnixMilli(), Snapshot: snapshot})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode snapshot", "error", err)
		return
	}

	if err := s.rdb.Set(ctx, snapshotKey, encoded, s.ttl).Err(); err != nil {
		slog.ErrorContext(ctx, "Failed to store snapshot in Redis", "error", err)
		return
	}

	metrics.SnapshotEntries.Set(float64(len(snapshot.Entries)))
	if snapshot.Degraded() {
		metrics.FeedDegraded.Set(1)
	} else {
		metrics.FeedDegraded.Set(0)
	}
}

func (s *SnapshotStore) Info(ctx context.Context) domain.StoreInfo {
	info := domain.StoreInfo{Backend: "redis", TTL: s.ttl}

	stored, ok := s.read(ctx)
	if !ok {
		return info
	}
	info.HasData = true
	info.Degraded = stored.Snapshot.Degraded()
	info.Entries = len(stored.Snapshot.Entries)
	info.Age = s.clock.Since(time.UnixMilli(stored.StoredAt))
	return info
}

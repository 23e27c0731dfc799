package domain

import (
	"context"
	"time"
)

// SnapshotStore holds the single most recent snapshot with a fixed TTL.
// Get returns (nil, false) when the slot is empty or expired.
type SnapshotStore interface {
	Get(ctx context.Context) (*Snapshot, bool)
	Set(ctx context.Context, snapshot *Snapshot)
	Info(ctx context.Context) StoreInfo
}

// StoreInfo describes the store slot for health reporting.
type StoreInfo struct {
	Backend  string        `json:"backend"`
	HasData  bool          `json:"hasData"`
	Degraded bool          `json:"degraded"`
	Entries  int           `json:"entries"`
	Age      time.Duration `json:"age"`
	TTL      time.Duration `json:"ttl"`
}

// Differ computes the minimal changeset between two snapshots.
// A nil result means nothing changed.
type Differ interface {
	Diff(old, new *Snapshot) *Changeset
}

// Fetcher retrieves the current snapshot from the upstream provider.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// ChangeBroadcaster receives the result of each poll.
type ChangeBroadcaster interface {
	Broadcast(changeset *Changeset) int
	BroadcastStatus(status FeedStatus) int
}

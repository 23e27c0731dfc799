package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 60 * time.Second

// MemoryStore keeps the most recent snapshot in a single slot.
// Stored snapshots are treated as immutable: Set swaps the pointer and
// readers may keep using a previously returned value.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *domain.Snapshot
	storedAt time.Time
	ttl      time.Duration
	clock    clockwork.Clock
}

var _ domain.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, clock: clock}
}

// Get returns the stored snapshot, or (nil, false) if the slot is empty or expired.
func (s *MemoryStore) Get(_ context.Context) (*domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, false
	}
	if s.clock.Since(s.storedAt) >= s.ttl {
		return nil, false
	}
	return s.snapshot, true
}

// Set replaces the slot and restarts the TTL clock.
func (s *MemoryStore) Set(_ context.Context, snapshot *domain.Snapshot) {
	s.mu.Lock()
	s.snapshot = snapshot
	s.storedAt = s.clock.Now()
	s.mu.Unlock()

	if snapshot != nil {
		metrics.SnapshotEntries.Set(float64(len(snapshot.Entries)))
		metrics.FeedDegraded.Set(boolToFloat(snapshot.Degraded()))
	}
}

// Info reports the slot state for health endpoints.
func (s *MemoryStore) Info(_ context.Context) domain.StoreInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := domain.StoreInfo{Backend: "memory", TTL: s.ttl}
	if s.snapshot == nil {
		return info
	}

	age := s.clock.Since(s.storedAt)
	if age >= s.ttl {
		return info
	}

	info.HasData = true
	info.Degraded = s.snapshot.Degraded()
	info.Entries = len(s.snapshot.Entries)
	info.Age = age
	return info
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

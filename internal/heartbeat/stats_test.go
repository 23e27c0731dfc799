package heartbeat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain/domaintest"
)

func TestSnapshotAll_Empty(t *testing.T) {
	s, _ := newTestSupervisor(t)

	stats := s.SnapshotAll()
	assert.Equal(t, 0, stats.Summary.TotalConnections)
	assert.Equal(t, int64(1000), stats.Summary.HeartbeatIntervalMs)
	assert.Equal(t, 3, stats.Summary.MaxMissedPongs)
	assert.NotNil(t, stats.Connections)
	assert.Empty(t, stats.Connections)
}

func TestSnapshotAll_Summary(t *testing.T) {
	s, clock := newTestSupervisor(t)

	s.Add(domaintest.NewConnection("c1"))
	clock.Advance(time.Second)
	s.Add(domaintest.NewConnection("c2"))
	clock.Advance(time.Second)
	s.Add(domaintest.NewConnection("c3"))

	s.SetSubscribed("c1", true)
	s.SetSubscribed("c3", true)
	s.SetSubscribed("c3", false)
	s.SetSubscribed("ghost", true)

	now := clock.Now().UnixMilli()
	require.NoError(t, s.HandlePong("c1", pong(now-10)))
	require.NoError(t, s.HandlePong("c2", pong(now-30)))

	stats := s.SnapshotAll()
	assert.Equal(t, 3, stats.Summary.TotalConnections)
	assert.Equal(t, 1, stats.Summary.SubscribedConnections)
	assert.InDelta(t, 20.0, stats.Summary.AverageLatencyMs, 1e-9, "connections without pongs are excluded")

	require.Len(t, stats.Connections, 3)
	assert.Equal(t, "c1", stats.Connections[0].ID, "ordered by connection time")
	assert.Equal(t, int64(2000), stats.Connections[0].DurationMs)
	assert.True(t, stats.Connections[0].Subscribed)
	assert.Equal(t, "127.0.0.1:5000", stats.Connections[0].RemoteAddr)
	assert.Nil(t, stats.Connections[2].LastPongAt)
	assert.Nil(t, stats.Connections[2].AverageLatencyMs, "no samples is not 0 ms")
}

func TestConnectionStats_LatencyWithoutSamplesIsNull(t *testing.T) {
	s, clock := newTestSupervisor(t)
	s.Add(domaintest.NewConnection("c1"))
	s.Add(domaintest.NewConnection("c2"))
	require.NoError(t, s.HandlePong("c2", pong(clock.Now().UnixMilli())))

	silent, _ := s.Get("c1")
	data, err := json.Marshal(silent)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"averageLatency":null`)

	answered, _ := s.Get("c2")
	data, err = json.Marshal(answered)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"averageLatency":0`, "a 0 ms pong is a real sample")
}

func TestSnapshotAll_IsPureRead(t *testing.T) {
	s, _ := newTestSupervisor(t)
	s.Add(domaintest.NewConnection("c1"))
	s.beat("c1")

	before, _ := s.Get("c1")
	_ = s.SnapshotAll()
	_ = s.SnapshotAll()
	after, _ := s.Get("c1")

	assert.Equal(t, before, after)
}

func TestRing(t *testing.T) {
	var r ring
	assert.Equal(t, 0.0, r.average())
	assert.Empty(t, r.values())

	for i := int64(1); i <= 12; i++ {
		r.push(i)
	}

	assert.Equal(t, []int64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, r.values())
	assert.InDelta(t, 7.5, r.average(), 1e-9)
}

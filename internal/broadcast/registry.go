package broadcast

import (
	"log/slog"
	"sync"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// UpdatesGroup is the group subscribed clients join.
const UpdatesGroup = "funding-updates"

// Registry tracks the connections subscribed to one named group.
type Registry struct {
	group string

	mu      sync.RWMutex
	members map[string]domain.Connection
}

func NewRegistry(group string) *Registry {
	return &Registry{group: group, members: make(map[string]domain.Connection)}
}

// Group returns the registry's group name.
func (r *Registry) Group() string { return r.group }

// Subscribe adds conn to the group. Returns false if it was already a member.
func (r *Registry) Subscribe(conn domain.Connection) bool {
	r.mu.Lock()
	if _, ok := r.members[conn.ID()]; ok {
		r.mu.Unlock()
		return false
	}
	r.members[conn.ID()] = conn
	n := len(r.members)
	r.mu.Unlock()

	conn.Join(r.group)
	metrics.SubscribedConnections.Set(float64(n))
	slog.Debug("Connection subscribed", "conn_id", conn.ID(), "group", r.group, "members", n)
	return true
}

// Unsubscribe removes the connection with the given id. Returns false if it
// was not a member.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	conn, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, id)
	n := len(r.members)
	r.mu.Unlock()

	conn.Leave(r.group)
	metrics.SubscribedConnections.Set(float64(n))
	slog.Debug("Connection unsubscribed", "conn_id", id, "group", r.group, "members", n)
	return true
}

// Contains reports whether id is a member.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Members returns a copy of the current member set.
func (r *Registry) Members() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Connection, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

// Len returns the number of members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

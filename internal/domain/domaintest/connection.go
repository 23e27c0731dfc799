// Package domaintest provides in-memory doubles for domain interfaces. Test use only.
package domaintest

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
)

// Sent is one event recorded by Connection.Send, with its payload re-encoded as JSON.
type Sent struct {
	Event string
	Data  json.RawMessage
}

// Connection records everything the core does to it.
type Connection struct {
	ConnID  string
	Addr    string
	Sub     string
	SendErr error

	mu           sync.Mutex
	sent         []Sent
	groups       []string
	disconnected bool
	forced       bool
}

var _ domain.Connection = (*Connection)(nil)

// NewConnection returns a fake connection with the given ID.
func NewConnection(id string) *Connection {
	return &Connection{ConnID: id, Addr: "127.0.0.1:5000"}
}

func (c *Connection) ID() string         { return c.ConnID }
func (c *Connection) RemoteAddr() string { return c.Addr }
func (c *Connection) Subject() string    { return c.Sub }

func (c *Connection) Send(event string, payload any) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return domain.ErrConnectionClosed
	}
	c.sent = append(c.sent, Sent{Event: event, Data: data})
	return nil
}

func (c *Connection) Disconnect(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.forced = force
}

func (c *Connection) Join(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.groups, group) {
		c.groups = append(c.groups, group)
	}
}

func (c *Connection) Leave(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = slices.DeleteFunc(c.groups, func(g string) bool { return g == group })
}

func (c *Connection) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.groups)
}

// Sent returns a copy of every recorded send.
func (c *Connection) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// SentEvents returns the recorded sends for one event name.
func (c *Connection) SentEvents(event string) []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sent
	for _, s := range c.sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// Disconnected reports whether Disconnect was called and whether it was forced.
func (c *Connection) Disconnected() (disconnected, forced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected, c.forced
}

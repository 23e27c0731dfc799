package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	maxMessageBytes   = 64 << 10
	DefaultSendBuffer = 64

	DefaultPingInterval = 10 * time.Second
	DefaultPingTimeout  = 30 * time.Second
)

// Config tunes the transport of a Conn.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	SendBuffer   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}

// Envelope is the wire format of every message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is one client connection.
type Conn struct {
	id         string
	remoteAddr string
	subject    string
	connection *websocket.Conn
	clock      clockwork.Clock
	cfg        Config
	openedAt   time.Time

	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu     sync.Mutex
	groups []string
}

var _ domain.Connection = (*Conn)(nil)

// NewConn wraps an upgraded socket and starts its writer. subject is the
// authenticated principal from the handshake.
func NewConn(connection *websocket.Conn, clock clockwork.Clock, cfg Config, subject, remoteAddr string) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		id:          uuid.NewString(),
		remoteAddr:  remoteAddr,
		subject:     subject,
		connection:  connection,
		clock:       clock,
		cfg:         cfg,
		openedAt:    clock.Now(),
		sendChannel: make(chan []byte, cfg.SendBuffer),
		doneChannel: make(chan struct{}),
	}

	connection.SetReadLimit(maxMessageBytes)
	c.extendReadDeadline()
	connection.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }
func (c *Conn) Subject() string    { return c.subject }

// Send enqueues one event. It never blocks: a full buffer returns
// domain.ErrSendBufferFull and a closed connection domain.ErrConnectionClosed.
func (c *Conn) Send(event string, payload any) error {
	select {
	case <-c.doneChannel:
		return domain.ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	select {
	case c.sendChannel <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// Disconnect closes the connection. A graceful disconnect lets the writer
// finish and sends a close frame; a forced one drops the socket.
func (c *Conn) Disconnect(force bool) {
	if force {
		c.stop()
		return
	}
	c.stopGraceful("server closing connection")
}

func (c *Conn) Join(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.groups, group) {
		c.groups = append(c.groups, group)
	}
}

func (c *Conn) Leave(group string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = slices.DeleteFunc(c.groups, func(g string) bool { return g == group })
}

func (c *Conn) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.groups)
}

// Serve runs the read pump until the socket fails or is closed, dispatching
// every inbound envelope to h. OnDisconnect is called exactly once on return.
func (c *Conn) Serve(h domain.ConnectionHandler) {
	reason := "client disconnect"
	defer func() {
		c.stop()
		metrics.WebSocketConnectionDuration.Observe(c.clock.Since(c.openedAt).Seconds())
		h.OnDisconnect(c, reason)
	}()

	for {
		msgType, msg, err := c.connection.ReadMessage()
		if err != nil {
			reason = c.disconnectReason(err)
			return
		}
		c.extendReadDeadline()

		if msgType != websocket.TextMessage {
			metrics.WebSocketMalformedMessages.WithLabelValues("binary").Inc()
			continue
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			slog.Warn("Ignoring malformed client message", "conn_id", c.id, "error", err)
			metrics.WebSocketMalformedMessages.WithLabelValues("envelope").Inc()
			continue
		}

		h.OnEvent(c, env.Event, env.Data)
	}
}

func (c *Conn) disconnectReason(err error) string {
	select {
	case <-c.doneChannel:
		return "server disconnect"
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return "client disconnect"
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "transport ping timeout"
	}
	return "transport error"
}

func (c *Conn) run() {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			start := time.Now()
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("WebSocket write failed", "conn_id", c.id, "error", err)
				go c.stop()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(time.Since(start).Seconds())
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				go c.stop()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

func (c *Conn) stop() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (c *Conn) stopGraceful(reason string) {
	c.stopOnce.Do(func() {
		close(c.doneChannel)

		// The writer must exit before the close frame is written.
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.connection.Close()
	})
}

// Socket deadlines are wall-clock; the injected clock only drives the ping ticker.
func (c *Conn) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (c *Conn) extendReadDeadline() {
	_ = c.connection.SetReadDeadline(time.Now().Add(c.cfg.PingTimeout))
}

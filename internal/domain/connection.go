package domain

import "encoding/json"

// Outbound event names.
const (
	EventInitialData   = "initialData"
	EventFundingUpdate = "fundingUpdate"
	EventFeedStatus    = "feedStatus"
	EventTestMessage   = "testMessage"
	EventPing          = "ping"
	EventSubscribed    = "subscribed"
	EventUnsubscribed  = "unsubscribed"
)

// Inbound event names.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventPong        = "pong"
)

// Connection is the capability set the core needs from a live client connection.
type Connection interface {
	ID() string
	RemoteAddr() string
	Subject() string
	Send(event string, payload any) error
	Disconnect(force bool)
	Join(group string)
	Leave(group string)
	Groups() []string
}

// ConnectionHandler receives inbound events for a connection.
// OnDisconnect is called exactly once, after the last OnEvent.
type ConnectionHandler interface {
	OnEvent(conn Connection, event string, data json.RawMessage)
	OnDisconnect(conn Connection, reason string)
}

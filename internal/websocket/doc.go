// Package websocket adapts gorilla/websocket connections to domain.Connection.
//
// Messages travel in both directions as JSON envelopes {"event", "data"}.
// Each Conn owns one writer goroutine that drains a bounded send buffer and
// emits transport-level ping frames; the read pump runs in Serve. Transport
// pings keep the socket alive and are separate from the application
// heartbeat.
package websocket

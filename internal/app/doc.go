// Package app provides the application service layer.
//
// Gateway binds the lifecycle of one client connection to the core: it
// registers the connection with the heartbeat supervisor, sends the initial
// snapshot, routes subscribe/unsubscribe/pong events and cleans up on
// disconnect. It is the only component that references the registry, the
// supervisor and the snapshot store together.
package app

// Package server provides the HTTP surface: the funding proxy endpoint,
// monitoring and health endpoints, Prometheus metrics and the WebSocket
// upgrade.
package server

// Package broadcast holds the subscription registry and the fan-out of
// funding updates to subscribed connections.
//
// The Registry is the single named group clients join with "subscribe".
// The Broadcaster copies the member set at call time and sends one event per
// member; a failed send is logged and counted but never aborts the fan-out.
package broadcast

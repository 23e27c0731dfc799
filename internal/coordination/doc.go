// Package coordination lets several server instances share one Redis
// snapshot store. A Redis lease elects the single instance that polls the
// upstream, and a pub/sub relay carries every broadcast event to all
// instances so each delivers it to its own subscribers.
package coordination

// Package upstream fetches the funding-rate document from the provider.
//
// Client.Fetch performs one logical fetch: a GET with the provider secret
// header, retried on transient failures within the caller's deadline and
// guarded by a circuit breaker. Any failure is reported wrapped in
// domain.ErrUpstreamUnavailable; the caller decides what to store.
package upstream

// Package redis implements the Redis-backed snapshot store.
//
// The client is built with two hooks: MetricsHook records per-command latency
// and outcome, CircuitBreakerHook fails fast while Redis is unreachable and
// serves the last read value for GET while the breaker is open.
package redis

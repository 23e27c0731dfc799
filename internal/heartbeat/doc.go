// Package heartbeat runs the application-level ping/pong liveness protocol
// for every live connection and aggregates per-connection statistics.
//
// Each connection gets one record and one scheduled task. A beat that finds
// the previous ping unanswered counts a missed pong; reaching the configured
// maximum force-closes the connection and ends its task. A valid pong resets
// the miss counter and feeds a ring of the ten most recent latencies.
package heartbeat

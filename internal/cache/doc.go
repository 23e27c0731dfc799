// Package cache holds the in-process snapshot store: a single slot with a
// fixed time-to-live, replaced whole on every write.
package cache

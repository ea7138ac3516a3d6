// Package stats aggregates call outcomes per command key.
//
// Outcomes land in a ring of time buckets (default 10 buckets of 100ms)
// holding counters and latency samples. On each executor tick the ring
// is summarized into an immutable Snapshot with P50/P95/P99 latency
// percentiles; the snapshot drives circuit breaker transitions.
//
// The aggregator is deliberately lock-free: the per-key executor
// goroutine is the only reader and writer, so every method takes the
// current time explicitly and trusts the caller for serialization.
// Counters saturate at the maximum under extreme load rather than
// wrapping.
package stats

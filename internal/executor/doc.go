// Package executor runs protected calls for a single command key.
//
// Each executor owns a mailbox goroutine that is the only place its
// circuit breaker and stats aggregator are read or written: submissions,
// call outcomes and reset timers arrive as messages on one mailbox
// channel, and snapshot ticks on a ticker read by the same goroutine, so
// breaker transitions are race-free without locks and
// the half-open single-probe invariant holds under parallel load.
//
// A submission is admitted, rejected, or (while a probe is in flight)
// stashed. Admitted calls race their command body against the call
// timeout; the loser of the race is discarded. Failed calls route
// through the command's fallback, either a static value or a secondary
// command resubmitted under the same admission rules.
//
// Nothing blocks inside the mailbox handler: command bodies run on
// their own goroutines or a worker pool, and their outcomes funnel back
// as messages in completion order.
package executor

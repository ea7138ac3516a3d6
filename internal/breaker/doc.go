// Package breaker implements the per-key circuit breaker state machine.
//
// The breaker has three states:
//
//   - CLOSED: normal operation, calls are admitted
//   - OPEN: calls are rejected until the reset timeout elapses
//   - HALF-OPEN: exactly one probe call is admitted; the rest are
//     stashed until the probe resolves
//
// Transitions out of CLOSED are driven by periodic stats snapshots, not
// per call, so the admission path stays cheap. A successful probe
// closes the breaker; a failed probe re-opens it for another reset
// timeout.
//
// The machine carries no mutex. The owning executor goroutine is the
// only caller, which is what makes the one-probe invariant hold under
// parallel load.
package breaker

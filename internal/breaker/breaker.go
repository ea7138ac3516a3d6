package breaker

import (
	"time"

	"github.com/angeloszaimis/defender/internal/stats"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Testing with one probe call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Decision is the admission verdict for one submission.
type Decision int

const (
	DecisionAdmit  Decision = iota // run the call
	DecisionReject                 // fail fast with BreakerOpen
	DecisionProbe                  // run the call as the half-open probe
	DecisionStash                  // hold until the probe resolves
)

// Machine holds the per-key breaker state. It has no internal locking:
// the owning executor goroutine is the only caller, which also keeps
// every transition ordered with respect to submissions.
type Machine struct {
	state         State
	maxFailures   int
	resetTimeout  time.Duration
	openedAt      time.Time
	resetAt       time.Time
	generation    uint64
	probeInFlight bool
}

func New(maxFailures int, resetTimeout time.Duration) *Machine {
	return &Machine{
		state:        StateClosed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

func (m *Machine) State() State { return m.state }

// Generation increments on every trip. Reset timers carry the
// generation they were scheduled for so a stale timer cannot half-open
// a breaker that re-opened in the meantime.
func (m *Machine) Generation() uint64 { return m.generation }

// Remaining returns the time left until the breaker will accept a
// probe. Zero unless the breaker is open.
func (m *Machine) Remaining(now time.Time) time.Duration {
	if m.state != StateOpen {
		return 0
	}
	if remaining := m.resetAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Admit decides what to do with a new submission.
func (m *Machine) Admit() Decision {
	switch m.state {
	case StateOpen:
		return DecisionReject
	case StateHalfOpen:
		if m.probeInFlight {
			return DecisionStash
		}
		m.probeInFlight = true
		return DecisionProbe
	default:
		return DecisionAdmit
	}
}

// OnSnapshot evaluates a stats snapshot and reports whether the breaker
// tripped. Transitions fire only while closed; a snapshot arriving in
// any other state is ignored.
//
// The guard is maxFailures-1 because the snapshot already contains the
// sample that crosses the threshold.
func (m *Machine) OnSnapshot(snap stats.Snapshot, now time.Time) bool {
	if m.state != StateClosed {
		return false
	}

	if int(snap.Calls.Timeout) >= m.maxFailures-1 {
		m.trip(now)
		return true
	}

	return false
}

// TryClose moves an open breaker to half-open. In any other state, or
// when gen belongs to an earlier trip, it is a no-op.
func (m *Machine) TryClose(gen uint64) bool {
	if m.state != StateOpen || gen != m.generation {
		return false
	}

	m.state = StateHalfOpen
	m.probeInFlight = false
	return true
}

// ProbeSucceeded closes the breaker after a successful probe.
func (m *Machine) ProbeSucceeded() {
	if m.state != StateHalfOpen {
		return
	}

	m.state = StateClosed
	m.probeInFlight = false
}

// ProbeFailed re-opens the breaker after a failed or timed-out probe.
func (m *Machine) ProbeFailed(now time.Time) {
	if m.state != StateHalfOpen {
		return
	}

	m.trip(now)
}

func (m *Machine) trip(now time.Time) {
	m.state = StateOpen
	m.openedAt = now
	m.resetAt = now.Add(m.resetTimeout)
	m.generation++
	m.probeInFlight = false
}

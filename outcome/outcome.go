package outcome

import (
	"errors"
	"fmt"
	"time"
)

// Result is the reply delivered for a submission. Exactly one Result is
// sent per submission: either Value is set or Err is non-nil.
type Result struct {
	Value any
	Err   error
}

// BreakerOpenError is returned when the circuit breaker rejects a call
// without running it. Remaining is the time left until the breaker will
// attempt a probe call.
type BreakerOpenError struct {
	Remaining time.Duration
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open, retry in %s", e.Remaining)
}

// TimeoutError is returned when a call exceeded its configured deadline.
// The underlying work is not interrupted; its late result is discarded.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call timed out after %s", e.After)
}

// IsBreakerOpen reports whether err is a breaker rejection.
func IsBreakerOpen(err error) bool {
	var target *BreakerOpenError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a call timeout.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

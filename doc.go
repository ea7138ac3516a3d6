// Package defender protects callers from slow or failing downstream
// dependencies. Each command key gets a call timeout, sliding-window
// outcome statistics, and a CLOSED/OPEN/HALF-OPEN circuit breaker so
// that an unhealthy dependency fails fast instead of dragging its
// callers down. Failed calls can route through a fallback: a static
// value or a secondary command.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    ...
//	}
//	d := defender.New(cfg)
//
//	cmd := command.NewAsync("user-service", fetchUser,
//	    command.WithStaticFallback(anonymousUser))
//
//	res := <-d.Submit(cmd)
//	if res.Err != nil {
//	    // outcome.IsBreakerOpen / outcome.IsTimeout distinguish
//	    // policy failures from the dependency's own errors.
//	}
//
// Executors are created lazily per key and live for the process
// lifetime; Shutdown drains them.
package defender

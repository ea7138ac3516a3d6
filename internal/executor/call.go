package executor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/angeloszaimis/defender/command"
	"github.com/angeloszaimis/defender/internal/stats"
	"github.com/angeloszaimis/defender/outcome"
)

type callResult struct {
	value any
	err   error
}

// launch starts an admitted call: the command body runs on its own
// goroutine or worker pool, and a race goroutine resolves body-completes
// versus deadline exactly once, then posts the outcome to the mailbox.
func (e *Executor) launch(call *pendingCall) {
	resultCh := make(chan callResult, 1)

	var body func() (any, error)
	var isSync bool

	switch c := call.cmd.(type) {
	case command.SyncCommand:
		body = c.ExecuteBlocking
		isSync = true
	case command.AsyncCommand:
		body = func() (any, error) { return c.Execute(e.ctx) }
	default:
		body = func() (any, error) {
			return nil, fmt.Errorf("command %T is neither sync nor async", call.cmd)
		}
	}

	run := func() {
		value, err := runProtected(body)
		resultCh <- callResult{value: value, err: err}
	}

	if isSync {
		if e.cfg.Dispatcher == "" && !e.warnedSharedPool {
			e.warnedSharedPool = true
			e.logger.Warn("sync command on the shared default pool; configure a pinned dispatcher so blocking calls stay isolated",
				slog.String("command", e.key))
		}
		if err := e.pool.Submit(run); err != nil {
			resultCh <- callResult{err: fmt.Errorf("dispatcher rejected command: %w", err)}
		}
	} else {
		go run()
	}

	e.inflight[call] = struct{}{}

	timeout := e.cfg.CallTimeout
	go func() {
		var res callResult
		kind := stats.KindSuccess

		if timeout <= 0 {
			res = <-resultCh
			if res.err != nil {
				kind = stats.KindError
			}
		} else {
			timer := time.NewTimer(timeout)
			select {
			case res = <-resultCh:
				timer.Stop()
				if res.err != nil {
					kind = stats.KindError
				}
			case <-timer.C:
				// The body is not interrupted; its late result lands in
				// the buffered channel and is discarded.
				res = callResult{err: &outcome.TimeoutError{After: timeout}}
				kind = stats.KindTimeout
			}
		}

		e.deliver(message{
			typ:     msgOutcome,
			call:    call,
			value:   res.value,
			err:     res.err,
			kind:    kind,
			latency: time.Since(call.start),
		})
	}()
}

// runProtected converts a panicking command body into an error result
// so a misbehaving command can never take down the executor.
func runProtected(body func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	return body()
}

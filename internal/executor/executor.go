package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angeloszaimis/defender/command"
	"github.com/angeloszaimis/defender/config"
	"github.com/angeloszaimis/defender/internal/breaker"
	"github.com/angeloszaimis/defender/internal/stats"
	"github.com/angeloszaimis/defender/internal/worker"
	"github.com/angeloszaimis/defender/outcome"
)

// ErrStopped is the reply for submissions that reach an executor after
// it shut down.
var ErrStopped = errors.New("executor stopped")

const (
	defaultMailboxSize = 1024
	defaultStashLimit  = 1024
	defaultTick        = time.Second
)

type msgType int

const (
	msgSubmit msgType = iota
	msgOutcome
	msgTryClose
	msgStats
)

type message struct {
	typ        msgType
	call       *pendingCall
	value      any
	err        error
	kind       stats.Kind
	latency    time.Duration
	generation uint64
	statsReply chan<- KeyStats
}

type pendingCall struct {
	cmd     command.Command
	replyTo chan<- outcome.Result
	start   time.Time
	probe   bool
	depth   int
	replied bool
}

// KeyStats is the observable state of one executor: the breaker state
// and the latest stats window.
type KeyStats struct {
	State    breaker.State  `json:"state"`
	Snapshot stats.Snapshot `json:"snapshot"`
}

// Executor is the serialization point for one command key. Its run
// goroutine is the only place the breaker and the stats aggregator are
// touched, so neither needs a lock.
type Executor struct {
	key    string
	cfg    config.Settings
	logger *slog.Logger
	pool   worker.Pool

	mailbox chan message
	breaker *breaker.Machine
	agg     *stats.Aggregator

	stash      []*pendingCall
	stashLimit int
	inflight   map[*pendingCall]struct{}

	tick        time.Duration
	bucketCount int
	bucketWidth time.Duration
	mailboxSize int

	ctx     context.Context
	stopped chan struct{}
	done    chan struct{}

	stopping         bool
	warnedSharedPool bool
}

// Option configures an executor at construction time.
type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithPool sets the worker pool for sync commands. Defaults to the
// process-wide shared pool.
func WithPool(pool worker.Pool) Option {
	return func(e *Executor) { e.pool = pool }
}

// WithTickInterval sets the snapshot cadence. Default is one second.
func WithTickInterval(d time.Duration) Option {
	return func(e *Executor) { e.tick = d }
}

// WithStatsWindow sets the ring geometry of the stats aggregator.
func WithStatsWindow(bucketCount int, bucketWidth time.Duration) Option {
	return func(e *Executor) {
		e.bucketCount = bucketCount
		e.bucketWidth = bucketWidth
	}
}

func WithMailboxSize(size int) Option {
	return func(e *Executor) { e.mailboxSize = size }
}

// WithStashLimit caps how many submissions may wait out a half-open
// probe before overflow rejects them.
func WithStashLimit(limit int) Option {
	return func(e *Executor) { e.stashLimit = limit }
}

// New creates an executor for the given key. Start must be called
// before submitting.
func New(key string, cfg config.Settings, opts ...Option) *Executor {
	e := &Executor{
		key:         key,
		cfg:         cfg,
		logger:      slog.Default(),
		tick:        defaultTick,
		stashLimit:  defaultStashLimit,
		mailboxSize: defaultMailboxSize,
		inflight:    make(map[*pendingCall]struct{}),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.pool == nil {
		e.pool = worker.Shared()
	}

	e.breaker = breaker.New(cfg.MaxFailures, cfg.ResetTimeout)
	e.agg = stats.NewAggregator(e.bucketCount, e.bucketWidth, time.Now())
	e.mailbox = make(chan message, e.mailboxSize)

	return e
}

// Start launches the mailbox goroutine. The executor runs until ctx is
// cancelled.
func (e *Executor) Start(ctx context.Context) {
	e.ctx = ctx
	go e.run(ctx)
}

// Done is closed once the executor has fully shut down.
func (e *Executor) Done() <-chan struct{} { return e.done }

// Submit runs cmd under this key's admission rules and returns a
// buffered channel that receives exactly one Result.
func (e *Executor) Submit(cmd command.Command) <-chan outcome.Result {
	reply := make(chan outcome.Result, 1)
	e.SubmitToReply(cmd, reply)
	return reply
}

// SubmitToReply is Submit with a caller-supplied sink. Exactly one
// Result is sent per submission; the sink must be buffered or serviced,
// otherwise it stalls the executor.
func (e *Executor) SubmitToReply(cmd command.Command, replyTo chan<- outcome.Result) {
	m := message{
		typ:  msgSubmit,
		call: &pendingCall{cmd: cmd, replyTo: replyTo, start: time.Now()},
	}

	// A stopped executor's buffered mailbox still accepts sends but is
	// never drained again, so check for stop before trying the mailbox.
	select {
	case <-e.stopped:
		replyTo <- outcome.Result{Err: ErrStopped}
		return
	default:
	}

	select {
	case e.mailbox <- m:
	case <-e.stopped:
		replyTo <- outcome.Result{Err: ErrStopped}
	}
}

// Stats returns the breaker state and current stats window, read inside
// the mailbox so the result is a consistent view.
func (e *Executor) Stats() KeyStats {
	reply := make(chan KeyStats, 1)

	select {
	case e.mailbox <- message{typ: msgStats, statsReply: reply}:
		select {
		case ks := <-reply:
			return ks
		case <-e.stopped:
			return KeyStats{State: e.breaker.State()}
		}
	case <-e.stopped:
		return KeyStats{State: e.breaker.State()}
	}
}

func (e *Executor) run(ctx context.Context) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	e.logger.Debug("executor started", slog.String("command", e.key))

	for {
		select {
		case m := <-e.mailbox:
			e.handle(m)
		case <-ticker.C:
			e.onTick(time.Now())
		case <-ctx.Done():
			e.shutdown()
			return
		}
	}
}

func (e *Executor) handle(m message) {
	switch m.typ {
	case msgSubmit:
		e.handleSubmit(m.call)

	case msgOutcome:
		e.handleOutcome(m)

	case msgTryClose:
		if e.breaker.TryClose(m.generation) {
			e.logger.Info("circuit half-open", slog.String("command", e.key))
		}

	case msgStats:
		m.statsReply <- KeyStats{
			State:    e.breaker.State(),
			Snapshot: e.agg.Snapshot(time.Now()),
		}
	}
}

func (e *Executor) handleSubmit(call *pendingCall) {
	if e.stopping {
		e.reply(call, outcome.Result{Err: ErrStopped})
		return
	}

	now := time.Now()

	switch e.breaker.Admit() {
	case breaker.DecisionAdmit:
		e.launch(call)

	case breaker.DecisionProbe:
		call.probe = true
		e.launch(call)

	case breaker.DecisionReject:
		e.agg.Report(stats.Event{Kind: stats.KindRejected}, now)
		e.completeFailure(call, &outcome.BreakerOpenError{Remaining: e.breaker.Remaining(now)})

	case breaker.DecisionStash:
		if len(e.stash) >= e.stashLimit {
			// Overflow rejects as if the breaker were open; the probe
			// has not resolved, so the full reset timeout is the best
			// remaining estimate.
			e.agg.Report(stats.Event{Kind: stats.KindRejected}, now)
			e.completeFailure(call, &outcome.BreakerOpenError{Remaining: e.cfg.ResetTimeout})
			return
		}
		e.stash = append(e.stash, call)
	}
}

func (e *Executor) handleOutcome(m message) {
	now := time.Now()

	e.agg.Report(stats.Event{Kind: m.kind, Latency: m.latency}, now)
	delete(e.inflight, m.call)

	if m.call.probe {
		if m.kind == stats.KindSuccess {
			e.breaker.ProbeSucceeded()
			e.logger.Info("circuit closed", slog.String("command", e.key))
		} else {
			e.breaker.ProbeFailed(now)
			e.logger.Warn("circuit reopened",
				slog.String("command", e.key),
				slog.Duration("reset_timeout", e.cfg.ResetTimeout))
			e.scheduleTryClose(e.cfg.ResetTimeout)
		}
		e.agg.Reset(now)
		e.replayStash()
	}

	if m.err == nil {
		e.reply(m.call, outcome.Result{Value: m.value})
	} else {
		e.completeFailure(m.call, m.err)
	}
}

// completeFailure routes a failed call through its fallback, if any,
// before surfacing the error.
func (e *Executor) completeFailure(call *pendingCall, callErr error) {
	if sf, ok := call.cmd.(command.StaticFallback); ok {
		value, err := materialize(sf)
		if err != nil {
			e.agg.Report(stats.Event{Kind: stats.KindError}, time.Now())
			e.reply(call, outcome.Result{Err: err})
			return
		}
		e.reply(call, outcome.Result{Value: value})
		return
	}

	if cf, ok := call.cmd.(command.CmdFallback); ok {
		fallback := cf.FallbackCommand()
		// A command that names itself as fallback runs once more at
		// most; the chain is otherwise bounded by the user.
		if fallback != nil && !(fallback == call.cmd && call.depth >= 1) {
			e.handleSubmit(&pendingCall{
				cmd:     fallback,
				replyTo: call.replyTo,
				start:   time.Now(),
				depth:   call.depth + 1,
			})
			return
		}
	}

	e.reply(call, outcome.Result{Err: callErr})
}

func (e *Executor) onTick(now time.Time) {
	snap := e.agg.Snapshot(now)

	if e.breaker.OnSnapshot(snap, now) {
		e.logger.Warn("circuit opened",
			slog.String("command", e.key),
			slog.Uint64("timeouts", uint64(snap.Calls.Timeout)),
			slog.Duration("reset_timeout", e.cfg.ResetTimeout))
		e.agg.Reset(now)
		e.scheduleTryClose(e.cfg.ResetTimeout)
	}
}

func (e *Executor) scheduleTryClose(after time.Duration) {
	gen := e.breaker.Generation()
	time.AfterFunc(after, func() {
		e.deliver(message{typ: msgTryClose, generation: gen})
	})
}

func (e *Executor) replayStash() {
	stashed := e.stash
	e.stash = nil

	for _, call := range stashed {
		e.handleSubmit(call)
	}
}

// reply sends the single outcome for a submission.
func (e *Executor) reply(call *pendingCall, result outcome.Result) {
	if call.replied {
		// Double-completion is a programming bug; dropping the second
		// result keeps the one-reply guarantee intact.
		e.logger.Error("dropped duplicate reply", slog.String("command", e.key))
		return
	}
	call.replied = true
	call.replyTo <- result
}

// deliver posts a message from outside the run goroutine, giving up
// once the executor has stopped.
func (e *Executor) deliver(m message) {
	select {
	case e.mailbox <- m:
	case <-e.stopped:
	}
}

// shutdown drains buffered messages, then fails everything still
// pending so no caller is left waiting.
func (e *Executor) shutdown() {
	e.stopping = true

	for {
		select {
		case m := <-e.mailbox:
			e.handle(m)
		default:
			for _, call := range e.stash {
				e.reply(call, outcome.Result{Err: ErrStopped})
			}
			e.stash = nil

			for call := range e.inflight {
				e.reply(call, outcome.Result{Err: ErrStopped})
			}
			e.inflight = make(map[*pendingCall]struct{})

			close(e.stopped)
			close(e.done)
			e.logger.Debug("executor stopped", slog.String("command", e.key))
			return
		}
	}
}

func materialize(sf command.StaticFallback) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fallback panicked: %v", r)
		}
	}()
	return sf.FallbackValue(), nil
}

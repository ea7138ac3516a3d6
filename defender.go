package defender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/defender/command"
	"github.com/angeloszaimis/defender/config"
	"github.com/angeloszaimis/defender/internal/executor"
	"github.com/angeloszaimis/defender/internal/worker"
	"github.com/angeloszaimis/defender/outcome"
)

// Defender maps command keys to executors. Executors are created lazily
// on first submission and live until Shutdown.
type Defender struct {
	mutex     sync.RWMutex
	executors map[string]*executor.Executor

	cfg    *config.Config
	logger *slog.Logger
	pools  *worker.Registry

	tick        time.Duration
	bucketCount int
	bucketWidth time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Defender.
type Option func(*Defender)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Defender) { d.logger = logger }
}

// WithTickInterval sets the stats snapshot cadence for every executor.
// Default is one second.
func WithTickInterval(tick time.Duration) Option {
	return func(d *Defender) { d.tick = tick }
}

// WithStatsWindow sets the stats ring geometry for every executor.
func WithStatsWindow(bucketCount int, bucketWidth time.Duration) Option {
	return func(d *Defender) {
		d.bucketCount = bucketCount
		d.bucketWidth = bucketWidth
	}
}

// New creates a Defender using cfg for per-key settings. A nil cfg
// means every key uses the built-in defaults.
func New(cfg *config.Config, opts ...Option) *Defender {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Defender{
		executors: make(map[string]*executor.Executor),
		cfg:       cfg,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.pools = worker.NewRegistry()

	return d
}

// Submit runs cmd under its key's executor and returns a buffered
// channel that receives exactly one Result.
func (d *Defender) Submit(cmd command.Command) <-chan outcome.Result {
	return d.executorFor(cmd.Key()).Submit(cmd)
}

// SubmitToReply is Submit with a caller-supplied sink. Exactly one
// Result is sent per submission.
func (d *Defender) SubmitToReply(cmd command.Command, replyTo chan<- outcome.Result) {
	d.executorFor(cmd.Key()).SubmitToReply(cmd, replyTo)
}

// executorFor returns the executor for key, creating it on first use.
func (d *Defender) executorFor(key string) *executor.Executor {
	d.mutex.RLock()
	exec, exists := d.executors[key]
	d.mutex.RUnlock()

	if exists {
		return exec
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if exec, exists = d.executors[key]; exists {
		return exec
	}

	exec = d.newExecutor(key)
	exec.Start(d.ctx)
	d.executors[key] = exec
	return exec
}

func (d *Defender) newExecutor(key string) *executor.Executor {
	settings := d.cfg.ForKey(key)

	opts := []executor.Option{
		executor.WithLogger(d.logger),
	}

	if d.tick > 0 {
		opts = append(opts, executor.WithTickInterval(d.tick))
	}
	if d.bucketCount > 0 || d.bucketWidth > 0 {
		opts = append(opts, executor.WithStatsWindow(d.bucketCount, d.bucketWidth))
	}

	if settings.Dispatcher != "" {
		pool, err := d.pools.Get(settings.Dispatcher, d.cfg.DispatcherSize(settings.Dispatcher))
		if err != nil {
			d.logger.Error("failed to create pinned dispatcher, falling back to shared pool",
				slog.String("command", key),
				slog.String("dispatcher", settings.Dispatcher),
				slog.String("error", err.Error()))
			settings.Dispatcher = ""
		} else {
			opts = append(opts, executor.WithPool(pool))
		}
	}

	return executor.New(key, settings, opts...)
}

// Shutdown stops every executor and releases the worker pools. It
// returns once all executors have drained or ctx expires.
func (d *Defender) Shutdown(ctx context.Context) error {
	d.cancel()

	d.mutex.RLock()
	executors := make([]*executor.Executor, 0, len(d.executors))
	for _, exec := range d.executors {
		executors = append(executors, exec)
	}
	d.mutex.RUnlock()

	for _, exec := range executors {
		select {
		case <-exec.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.pools.Release()
	return nil
}

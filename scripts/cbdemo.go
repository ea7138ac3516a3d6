// cbdemo exercises the defender against an in-process flaky dependency:
// it drives the circuit breaker through close -> open -> half-open ->
// close and prints the observed outcomes per phase.
//
// Usage:
//
//	go run cbdemo.go -requests 6 -stats-addr :8090
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	defender "github.com/angeloszaimis/defender"
	"github.com/angeloszaimis/defender/command"
	"github.com/angeloszaimis/defender/config"
	"github.com/angeloszaimis/defender/internal/httpserver"
	"github.com/angeloszaimis/defender/outcome"
	"github.com/angeloszaimis/defender/pkg/logger"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

const commandKey = "flaky-backend"

func main() {
	var (
		requests  = flag.Int("requests", 6, "Requests per phase")
		statsAddr = flag.String("stats-addr", ":8090", "Stats endpoint address")
		logLevel  = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	log := logger.New(*logLevel, false, "dev")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := &config.Config{
		Commands: map[string]config.CommandConfig{
			commandKey: {
				CircuitBreaker: config.BreakerConfig{
					MaxFailures:  3,
					CallTimeout:  "150ms",
					ResetTimeout: "2s",
				},
			},
		},
	}

	d := defender.New(cfg,
		defender.WithLogger(log),
		defender.WithTickInterval(100*time.Millisecond))

	srv, err := httpserver.New(*statsAddr, d.Handler())
	if err != nil {
		fmt.Println(colorRed + "failed to create stats server: " + err.Error() + colorReset)
		os.Exit(1)
	}
	go func() {
		if err := srv.Start(); err != nil {
			fmt.Println(colorRed + "stats server error: " + err.Error() + colorReset)
		}
	}()

	// hanging simulates the dependency going dark: calls block far past
	// the call timeout.
	var hanging atomic.Bool

	ping := func(ctx context.Context) (any, error) {
		if hanging.Load() {
			time.Sleep(time.Second)
		}
		return "pong", nil
	}

	cmd := command.NewAsync(commandKey, ping)
	guarded := command.NewAsync(commandKey, ping, command.WithStaticFallback("cached-pong"))

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║         DEFENDER CIRCUIT BREAKER DEMO                          ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: healthy dependency
	fmt.Println(colorBlue + "━━━ PHASE 1: Healthy Dependency ━━━" + colorReset)
	runPhase(d, cmd, *requests)
	printStats(d)

	// PHASE 2: dependency hangs; timeouts trip the breaker
	fmt.Println(colorBlue + "━━━ PHASE 2: Dependency Hangs ━━━" + colorReset)
	hanging.Store(true)
	runPhase(d, cmd, *requests)
	printStats(d)

	// PHASE 3: breaker is open; guarded calls fail fast into the fallback
	fmt.Println(colorBlue + "━━━ PHASE 3: Fail Fast With Fallback ━━━" + colorReset)
	start := time.Now()
	runPhase(d, guarded, *requests)
	fmt.Printf("  phase took %s (no call waited out the timeout)\n\n", time.Since(start).Round(time.Millisecond))
	printStats(d)

	// PHASE 4: dependency recovers; the probe closes the breaker
	fmt.Println(colorBlue + "━━━ PHASE 4: Recovery ━━━" + colorReset)
	hanging.Store(false)
	fmt.Println("  waiting out the reset timeout...")
	select {
	case <-time.After(2500 * time.Millisecond):
	case <-ctx.Done():
		shutdown(d, srv)
		return
	}
	runPhase(d, cmd, *requests)
	printStats(d)

	fmt.Println(colorGreen + "✓ Demo complete" + colorReset)
	shutdown(d, srv)
}

func runPhase(d *defender.Defender, cmd command.Command, requests int) {
	for i := 0; i < requests; i++ {
		started := time.Now()
		res := <-d.Submit(cmd)
		elapsed := time.Since(started).Round(time.Millisecond)

		switch {
		case res.Err == nil && res.Value == "cached-pong":
			fmt.Printf(colorYellow+"  Request %d: fallback %q in %s\n"+colorReset, i+1, res.Value, elapsed)
		case res.Err == nil:
			fmt.Printf(colorGreen+"  Request %d: %q in %s\n"+colorReset, i+1, res.Value, elapsed)
		case outcome.IsTimeout(res.Err):
			fmt.Printf(colorRed+"  Request %d: TIMEOUT after %s\n"+colorReset, i+1, elapsed)
		case outcome.IsBreakerOpen(res.Err):
			fmt.Printf(colorRed+"  Request %d: BREAKER OPEN (%s)\n"+colorReset, i+1, res.Err)
		default:
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, res.Err)
		}
	}
	fmt.Println()
}

func printStats(d *defender.Defender) {
	for key, ks := range d.Stats() {
		fmt.Printf("  stats[%s]: state=%s succ=%d err=%d timeout=%d rejected=%d p95=%s\n\n",
			key, ks.State, ks.Success, ks.Error, ks.Timeout, ks.Rejected, ks.P95)
	}
}

func shutdown(d *defender.Defender, srv *httpserver.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.Shutdown(ctx); err != nil {
		fmt.Println(colorRed + "shutdown error: " + err.Error() + colorReset)
	}
	_ = srv.Shutdown(ctx)
}

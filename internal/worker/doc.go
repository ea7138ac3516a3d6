// Package worker provides goroutine pools for blocking command bodies.
//
// Sync commands must not run on the executor goroutine, so they are
// dispatched to a pool: either the process-wide shared pool or a named
// pinned pool sized for a specific dependency. Pinned pools keep one
// misbehaving dependency's sleeps from starving everyone else's sync
// commands.
package worker

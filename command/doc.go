// Package command models the units of work protected by a defender.
//
// Commands come in two variants:
//
//   - Async: Execute runs on its own goroutine and is expected to
//     complete within the call timeout
//   - Sync: ExecuteBlocking runs on a worker pool so blocking calls
//     cannot stall the executor
//
// Either variant may declare a fallback:
//
//	cmd := command.NewAsync("search", fetch,
//	    command.WithStaticFallback(cachedResults))
//
//	cmd := command.NewSync("lookup", query,
//	    command.WithFallbackCommand(secondary))
//
// Fallback capabilities are discovered by interface assertion against
// StaticFallback and CmdFallback.
package command

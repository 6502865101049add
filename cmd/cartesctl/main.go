// Command cartesctl drives the cartes inventory backend from a terminal: it logs
// in, keeps the session in a local file (or Redis) and runs the dashboard,
// inventory and import calls.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

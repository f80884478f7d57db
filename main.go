// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/krylovex/gridpick-cli/cmd"
)

// main is the entry point for the gridpick CLI. Interrupt and termination
// signals cancel the context every command runs under, so an in-flight
// resolution aborts cleanly and still journals its report.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}

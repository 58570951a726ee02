// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/jen-cli/cmd"
)

// main is the entry point for the jen CLI.
func main() {
	// Commands receive a context cancelled on SIGINT/SIGTERM so long-running
	// builds and watch mode shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}

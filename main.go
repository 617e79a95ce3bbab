// The main package for the pipeline executable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaishamap/company-pipeline/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.ExecuteContext(ctx)
}

// Command hookpoint compiles CUE API declarations and runs queries,
// submits, and conformance scenarios against them.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/hookpoint/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}

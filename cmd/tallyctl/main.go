package main

import (
	"context"
	"fmt"
	"os"

	"tally/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	ctx, stop := cli.SignalContext(context.Background())
	err := cli.NewRootCommand(cli.DefaultEnv()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/kar10s/airtwitch/internal/cli"
	"github.com/kar10s/airtwitch/internal/lifecycle"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}

// Package main is the heatmap command: a one-shot fetcher and an HTTP service
// for YouTube "most replayed" heatmaps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

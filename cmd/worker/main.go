// Package main implements the entry point for the voxnote worker, which
// consumes submitted jobs and runs them through the processing pipeline.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize worker: %v", err)
	}

	if err := app.run(ctx); err != nil {
		log.Fatalf("Worker exited with error: %v", err)
	}
}

// Package main implements the entry point for the image generation API
// server, which proxies user prompts to external image providers with
// ordered failover, enforces per-user quotas, and keeps a durable ledger of
// every generation.
package main

import (
	"context"
	"log"
)

func main() {
	ctx := context.Background()

	app, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"kbridge/internal/bridge"
	"kbridge/internal/logging"
)

func main() {
	specPath := flag.String("spec", "bridge.yml", "path to the bridge spec file")
	flag.Parse()

	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bridge.Bootstrap(*specPath)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	if err := b.Run(ctx); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

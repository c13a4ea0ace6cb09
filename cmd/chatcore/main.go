package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatcore/internal/app"
	"chatcore/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	flag.Parse()

	cfg := config.LoadConfigWithPrecedence(*configPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down", sig)

	cancel()
	if err := application.Shutdown(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

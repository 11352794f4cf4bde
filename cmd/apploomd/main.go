// Command apploomd runs the AI application-builder engine's HTTP
// surface: project generation and editing over the Orchestrator, and a
// push-reload websocket over the Preview manager. A flag-parsed
// listen address, a constructor that wires every collaborator, and
// signal-triggered graceful shutdown bounded by context.WithTimeout.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"apploom/internal/config"
)

func main() {
	addr := pflag.String("addr", ":8080", "HTTP listen address")
	envFile := pflag.String("env-file", ".env", "path to a .env file to load before reading the environment")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("apploomd: could not load %s: %v", *envFile, err)
	}
	cfg := config.Load()

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("apploomd: failed to initialize: %v", err)
	}

	const reaperPollInterval = time.Minute
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	if a.preview != nil {
		go a.preview.RunReaper(reaperCtx, reaperPollInterval)
	}

	go func() {
		log.Printf("apploomd: listening on %s", *addr)
		if err := a.start(*addr); err != nil {
			log.Printf("apploomd: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("apploomd: shutting down")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		log.Fatalf("apploomd: forced shutdown: %v", err)
	}
	log.Println("apploomd: exited")
}

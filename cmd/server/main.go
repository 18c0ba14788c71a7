package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/kpi-rollup/internal/api"
	"github.com/ignite/kpi-rollup/internal/app"
)

// checkPortAvailable fails fast when a stale process still holds the port.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting KPI rollup API (cmd/server)")

	cfg, err := app.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	if a.Redis != nil {
		log.Println("Redis connected (trend cache enabled)")
	} else {
		log.Println("Redis not configured, trend reports are computed on every request")
	}

	handlers := api.NewHandlers(a.Engine, a.Orchestrator, a.Trends)
	health := api.NewHealthChecker(a.DB, a.Redis, 2*cfg.Scheduler.Interval())
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRoutes(handlers, health, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

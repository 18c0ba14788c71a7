package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/ignite/kpi-rollup/internal/app"
	"github.com/ignite/kpi-rollup/internal/archive"
	"github.com/ignite/kpi-rollup/internal/worker"
)

func main() {
	log.Println("Starting KPI rollup worker...")

	cfg, err := app.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup

	if cfg.Scheduler.Enabled {
		opts := []worker.SchedulerOption{worker.WithTenants(cfg.Scheduler.Tenants...)}
		exporter, err := archive.FromConfig(ctx, cfg.Archive, a.Summaries)
		if err != nil {
			log.Fatalf("Failed to initialize archive: %v", err)
		}
		if exporter != nil {
			opts = append(opts, worker.WithArchiver(exporter))
			log.Printf("Monthly archive enabled (type=%s)", cfg.Archive.Type)
		}

		scheduler := worker.NewRollupScheduler(a.Orchestrator, a.KPIConfigs, a.Locks(), cfg.Scheduler.Interval(), opts...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx)
		}()
	} else {
		log.Println("Rollup scheduler disabled")
	}

	if cfg.Kafka.Enabled {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			Topic:          cfg.Kafka.Topic,
			MinBytes:       1,
			MaxBytes:       1e6,
			CommitInterval: 0, // synchronous commits
		})
		consumer := worker.NewCorrectionConsumer(reader, a.Orchestrator)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			log.Printf("Correction consumer started (topic=%s, group=%s)", cfg.Kafka.Topic, cfg.Kafka.GroupID)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Correction consumer stopped with error: %v", err)
			}
		}()
	} else {
		log.Println("Correction consumer disabled")
	}

	metricsSrv := &http.Server{Addr: cfg.Server.Addr(), Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("Worker metrics listening on %s", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	wg.Wait()
	log.Println("Worker stopped")
}

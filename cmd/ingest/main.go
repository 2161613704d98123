package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"algopack-api/internal/cli"
	"algopack-api/internal/config"
	"algopack-api/internal/ingest"
	"algopack-api/internal/svc"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var configFile = flag.String("f", config.DefaultConfigPath, "path to the daemon config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting ingest daemon...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configFile, err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	svcCtx, err := svc.NewServiceContext(cfg)
	if err != nil {
		log.Fatalf("[main] Failed to build service context: %v", err)
	}

	if len(cfg.Ingest.Jobs) == 0 {
		log.Println("[main] No ingest jobs configured, nothing to run")
		return
	}
	if !svcCtx.HasStorage() {
		log.Fatalf("[main] Ingest jobs require Postgres storage, set postgres dsn in %s", *configFile)
	}

	service, err := ingest.New(cfg.Ingest, ingest.Dependencies{
		Client:  svcCtx.ISS,
		Candles: svcCtx.Repos.Candles,
		Stats:   svcCtx.Repos.TradeStats,
		Runs:    svcCtx.IngestRunsModel,
		Journal: svcCtx.Journal,
		Guard:   svcCtx.Store,
		TTL:     svcCtx.TTL,
	})
	if err != nil {
		log.Fatalf("[main] Failed to build ingest service: %v", err)
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.Run(ctx)
	}()

	log.Printf("[main] Ingest daemon started: %d job(s), cycle every %s. Press Ctrl+C to stop.",
		len(cfg.Ingest.Jobs), cfg.Ingest.Interval())

	// Wait for signal
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping jobs...")

	// Give running jobs time to finish their current fetch
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All jobs stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Ingest daemon stopped")
}

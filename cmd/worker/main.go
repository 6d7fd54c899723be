package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/services"
)

// runs indexing workers, the stale job sweeper and crawl cleanup without the HTTP API
func main() {
	logger.Info("starting crawlsearch worker")

	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	if cfg.Queue.Backend == config.BackendMemory {
		logger.Fatal("a standalone worker needs a shared queue, set QUEUE_BACKEND=redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := services.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize services", "error", err)
	}

	workers := pool.NewWorkerPool()
	workers.Start(ctx)

	go pool.NewSweeper().Start(ctx)
	go pool.NewCrawlCleanup().Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")

	// jobs get until their own timeout to finish
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Queue.JobTimeout+5*time.Second)
	defer stopCancel()

	if err := workers.Stop(stopCtx); err != nil {
		logger.ErrorErr(err, "workers did not drain before shutdown")
	}

	cancel()
	pool.Close()

	logger.Info("worker stopped")
}

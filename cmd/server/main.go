package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/logger"
)

// @title Crawlsearch API
// @version 1.0
// @description Ingests crawled web pages and serves hybrid semantic and keyword search
// @description
// @description Features:
// @description - Hybrid search fusing vector similarity and BM25 with reciprocal rank fusion
// @description - Asynchronous indexing through a job queue
// @description - Firecrawl webhook ingestion with signature verification

// @contact.name API Support
// @contact.url https://codeberg.org/crawlsearch/server

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token for admin requests. Format: Bearer {token}

func main() {
	logger.Info("starting crawlsearch server")

	// load configuration from environment
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	if srv.workers != nil {
		srv.workers.Start(ctx)
		go srv.sweeper.Start(ctx)
	}

	go srv.crawlCleanup.Start(ctx)

	// wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// let in-flight jobs finish, then stop background loops
	if srv.workers != nil {
		if err := srv.workers.Stop(shutdownCtx); err != nil {
			logger.ErrorErr(err, "workers did not drain before shutdown")
		}
	}

	cancel()

	srv.pool.Close()

	logger.Info("server stopped")
}

package main

import (
	"context"
	"fmt"

	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/ratelimit"
	"codeberg.org/crawlsearch/server/internal/services"
	"github.com/gin-gonic/gin"
)

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := services.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	limiter, err := ratelimit.New(cfg.RateLimit, pool.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	router := gin.Default()

	server := &Server{
		pool:         pool,
		router:       router,
		sweeper:      pool.NewSweeper(),
		crawlCleanup: pool.NewCrawlCleanup(),
	}

	if cfg.RunWorkers {
		server.workers = pool.NewWorkerPool()
		logger.Info("embedded workers enabled", "concurrency", cfg.Queue.Concurrency)
	}

	RegisterRoutes(router, server, limiter)

	return server, nil
}

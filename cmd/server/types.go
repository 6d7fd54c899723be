package main

import (
	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/services"
	"github.com/gin-gonic/gin"
)

// holds all dependencies and state for the API server
type Server struct {
	pool   *services.Pool
	router *gin.Engine

	// nil unless RUN_WORKERS is set
	workers      *queue.WorkerPool
	sweeper      *queue.Sweeper
	crawlCleanup *crawls.CleanupService
}

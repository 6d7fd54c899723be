package main

import (
	"time"

	"codeberg.org/crawlsearch/server/api/rest/documents"
	"codeberg.org/crawlsearch/server/api/rest/health"
	"codeberg.org/crawlsearch/server/api/rest/jobs"
	"codeberg.org/crawlsearch/server/api/rest/search"
	"codeberg.org/crawlsearch/server/api/rest/webhooks"
	"codeberg.org/crawlsearch/server/internal/auth"
	"codeberg.org/crawlsearch/server/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server, limiter *ratelimit.Limiter) {
	pool := server.pool

	router.Use(CORSMiddleware())
	router.Use(limiter.Middleware())
	router.GET("/health", health.Handler(pool))

	docs := documents.Deps{
		Queue:      pool.Broker,
		JobOptions: pool.JobOptions,
		Sources:    pool.Sources,
		Watches:    pool.Watches,
		Deleter:    pool.Pipeline,
		Vectors:    pool.Vectors,
		Collection: pool.Config.Vector.Collection,
		Lexical:    pool.Lexical,
	}

	// a typed nil would defeat the handler's nil check
	if pool.Cache != nil {
		docs.Cache = pool.Cache
	}

	v1 := router.Group("/api/v1")

	{
		v1.GET("/ping", health.PingHandler)

		search.RegisterRoutes(v1, pool.Retriever)
		documents.RegisterRoutes(v1, docs)
		jobs.RegisterRoutes(v1, pool.Broker)
		webhooks.RegisterRoutes(v1, webhooks.Deps{
			Secret:     pool.Config.WebhookSecret,
			Queue:      pool.Broker,
			JobOptions: pool.JobOptions,
			Crawls:     pool.Crawls,
		})
	}

	if pool.Auth == nil {
		return
	}

	admin := v1.Group("/admin")
	admin.Use(pool.Auth.Middleware(), auth.RequireAdmin())

	{
		documents.RegisterAdminRoutes(admin, docs)
		jobs.RegisterAdminRoutes(admin, server.sweeper, server.crawlCleanup)
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

package services

import (
	"codeberg.org/crawlsearch/server/internal/auth"
	"codeberg.org/crawlsearch/server/internal/cache"
	"codeberg.org/crawlsearch/server/internal/chunker"
	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/embedder"
	"codeberg.org/crawlsearch/server/internal/executor"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/lexical"
	"codeberg.org/crawlsearch/server/internal/metrics"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"codeberg.org/crawlsearch/server/internal/sources"
	"codeberg.org/crawlsearch/server/internal/storage"
	"codeberg.org/crawlsearch/server/internal/watches"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Pool holds every long-lived handle of the process. It is built once at
// startup and handed to handlers and workers explicitly.
type Pool struct {
	Config *config.Config

	// nil when no DATABASE_URL is configured
	DB *pgxpool.Pool
	// nil when no REDIS_URL is configured
	Redis *redis.Client

	Chunker *chunker.Chunker
	// used for document chunks
	Embedder embedder.Embedder
	// LRU cached, used for queries
	QueryEmbedder embedder.Embedder
	Vectors       storage.VectorStore
	Lexical       *lexical.Index
	Executor      *executor.Pool

	Pipeline  *indexer.Pipeline
	Retriever *retriever.Retriever

	Broker     queue.Broker
	JobOptions queue.EnqueueOptions
	Recorder   metrics.Recorder

	Crawls  crawls.Repository
	Watches watches.Repository
	Sources *sources.Registry
	// nil without redis
	Cache *cache.ContentCache
	Auth  *auth.Authenticator

	closers []closer
}

type closer struct {
	name string
	fn   func()
}

package services

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/crawlsearch/server/internal/auth"
	"codeberg.org/crawlsearch/server/internal/cache"
	"codeberg.org/crawlsearch/server/internal/chunker"
	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/database"
	"codeberg.org/crawlsearch/server/internal/embedder"
	"codeberg.org/crawlsearch/server/internal/executor"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/lexical"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/metrics"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"codeberg.org/crawlsearch/server/internal/sources"
	"codeberg.org/crawlsearch/server/internal/storage"
	"codeberg.org/crawlsearch/server/internal/watches"
)

// New builds the pool. On error everything built so far is released.
func New(ctx context.Context, cfg *config.Config) (p *Pool, err error) {
	p = &Pool{Config: cfg}

	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	if cfg.DatabaseURL != "" {
		db, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}

		p.DB = db
		p.onClose("postgres", db.Close)

		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}

		p.Redis = client
		p.onClose("redis", func() { _ = client.Close() })
	}

	if err := p.initIndexes(ctx, cfg); err != nil {
		return nil, err
	}

	p.initRecorder(cfg)

	if err := p.initQueue(cfg); err != nil {
		return nil, err
	}

	p.Pipeline = indexer.New(indexer.Config{
		Splitter:   p.Chunker,
		Embedder:   p.Embedder,
		Vectors:    p.Vectors,
		Collection: cfg.Vector.Collection,
		Lexical:    p.Lexical,
		Recorder:   p.Recorder,
	})

	p.Executor = executor.NewPool(cfg.Lexical.Workers)

	p.Retriever = retriever.New(retriever.Config{
		Embedder:   p.QueryEmbedder,
		Vectors:    p.Vectors,
		Collection: cfg.Vector.Collection,
		Lexical:    p.Lexical,
		Pool:       p.Executor,
		Recorder:   p.Recorder,
	})

	if p.DB != nil {
		p.Crawls = crawls.NewRepository(p.DB)
		p.Watches = watches.NewRepository(p.DB)
	} else {
		p.Crawls = crawls.NewMemoryRepository()
		p.Watches = watches.NewMemoryRepository()
	}

	p.Sources = sources.NewRegistry(
		sources.NewFileSource(cfg.Sources.FileRoot),
		sources.NewFirecrawlSource(cfg.Sources.FirecrawlURL, cfg.Sources.FirecrawlAPIKey),
		sources.NewHTTPSource(),
	)

	if p.Redis != nil {
		p.Cache = cache.NewContentCache(p.Redis, cfg.ContentCacheTTL)
	}

	if cfg.JWTSecret != "" {
		p.Auth = auth.New(cfg.JWTSecret, auth.DefaultTokenTTL)
	} else {
		logger.Warn("JWT_SECRET not set, admin endpoints are disabled")
	}

	logger.Info("services initialized",
		"vector_backend", cfg.Vector.Backend,
		"queue_backend", cfg.Queue.Backend,
		"embedder", cfg.Embedding.Provider,
		"sources", p.Sources.Names(),
		"metrics", cfg.MetricsEnabled,
	)

	return p, nil
}

func (p *Pool) initIndexes(ctx context.Context, cfg *config.Config) error {
	ch, err := chunker.New(chunker.Options{
		MaxTokens:     cfg.Chunking.MaxTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		Tokenizer:     cfg.Chunking.Tokenizer,
	})
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}
	p.Chunker = ch

	switch cfg.Embedding.Provider {
	case config.ProviderHash:
		hash, err := embedder.NewHashEmbedder(cfg.Embedding.Dimensions)
		if err != nil {
			return err
		}
		p.Embedder = hash
	default:
		p.Embedder = embedder.NewClient(embedder.ClientConfig{
			BaseURL:    cfg.Embedding.URL,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
			MaxConns:   cfg.Embedding.MaxConns,
			RPS:        cfg.Embedding.RPS,
			Timeout:    cfg.Embedding.Timeout,
		})
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.Embedder.Health(healthCtx); err != nil {
		// queries degrade to keyword search until it recovers
		logger.Warn("embedding service unhealthy at startup", "error", err)
	}

	p.QueryEmbedder = embedder.NewCachedEmbedder(p.Embedder, cfg.Embedding.CacheSize)

	switch cfg.Vector.Backend {
	case config.BackendMemory:
		p.Vectors = storage.NewMemoryStore()
	default:
		if p.DB == nil {
			return fmt.Errorf("vector backend %q needs DATABASE_URL", cfg.Vector.Backend)
		}
		p.Vectors = storage.NewPostgresStore(p.DB)
	}
	p.onClose("vector store", p.Vectors.Close)

	if err := p.Vectors.EnsureCollection(ctx, cfg.Vector.Collection, p.Embedder.Dimensions()); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	lex, err := lexical.Open(lexical.Options{
		Path:            cfg.Lexical.IndexPath,
		PersistInterval: cfg.Lexical.PersistInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to open lexical index: %w", err)
	}
	p.Lexical = lex

	if cfg.Lexical.PersistInterval > 0 && cfg.Lexical.IndexPath != "" {
		flusher := lexical.NewFlusher(lex, cfg.Lexical.PersistInterval)
		flusher.Start()
		p.onClose("bm25 flusher", flusher.Stop)
	}

	return nil
}

func (p *Pool) initRecorder(cfg *config.Config) {
	if !cfg.MetricsEnabled || p.DB == nil {
		p.Recorder = metrics.NopRecorder{}
		return
	}

	recorder := metrics.NewBufferedRecorder(metrics.NewPostgresSink(p.DB), metrics.Options{})
	recorder.Start()

	p.Recorder = recorder
	p.onClose("metrics recorder", recorder.Stop)
}

func (p *Pool) initQueue(cfg *config.Config) error {
	p.JobOptions = queue.EnqueueOptions{
		Timeout:     cfg.Queue.JobTimeout,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}

	switch cfg.Queue.Backend {
	case config.BackendMemory:
		p.Broker = queue.NewMemoryBroker()
	default:
		if p.Redis == nil {
			return fmt.Errorf("queue backend %q needs REDIS_URL", cfg.Queue.Backend)
		}
		p.Broker = queue.NewRedisBroker(p.Redis)
	}

	p.onClose("broker", func() { _ = p.Broker.Close() })
	return nil
}

// NewWorkerPool returns a worker pool with the indexing handler registered
func (p *Pool) NewWorkerPool() *queue.WorkerPool {
	workers := queue.NewWorkerPool(p.Broker, p.Config.Queue.Concurrency, p.Recorder)
	workers.Register(indexer.JobIndexDocument, p.Pipeline.HandleJob)
	return workers
}

func (p *Pool) onClose(name string, fn func()) {
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse construction order
func (p *Pool) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		logger.Debug("closing", "resource", c.name)
		c.fn()
	}

	p.closers = nil
}

const (
	// how long a job may overrun its timeout before the sweeper reclaims it
	sweepGrace = 30 * time.Second

	// how often the cleanup service checks for stale crawls
	crawlCheckInterval = 5 * time.Minute

	// crawls without a page for longer than this are failed
	crawlInactivityThreshold = 30 * time.Minute
)

// NewSweeper returns the stale job sweeper for this pool's broker
func (p *Pool) NewSweeper() *queue.Sweeper {
	return queue.NewSweeper(p.Broker, p.Config.Queue.SweepInterval, sweepGrace)
}

// NewCrawlCleanup returns the service that fails abandoned crawl sessions
func (p *Pool) NewCrawlCleanup() *crawls.CleanupService {
	return crawls.NewCleanupService(p.Crawls, crawlCheckInterval, crawlInactivityThreshold)
}

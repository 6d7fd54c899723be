package config

import "time"

const (
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	ProviderTEI  = "tei"
	ProviderHash = "hash"
)

type Config struct {
	Environment string
	Port        string

	DatabaseURL string
	RedisURL    string

	Embedding EmbeddingConfig
	Vector    VectorConfig
	Lexical   LexicalConfig
	Chunking  ChunkingConfig
	Queue     QueueConfig
	Sources   SourcesConfig

	WebhookSecret   string
	JWTSecret       string
	RateLimit       string
	RunWorkers      bool
	MetricsEnabled  bool
	ContentCacheTTL time.Duration
}

type EmbeddingConfig struct {
	Provider   string
	URL        string
	Dimensions int
	BatchSize  int
	MaxConns   int
	RPS        float64
	Timeout    time.Duration
	CacheSize  int
}

type VectorConfig struct {
	Backend    string
	Collection string
}

type LexicalConfig struct {
	IndexPath       string
	PersistInterval time.Duration
	Workers         int
}

type ChunkingConfig struct {
	MaxTokens     int
	OverlapTokens int
	Tokenizer     string
}

type QueueConfig struct {
	Backend       string
	Concurrency   int
	JobTimeout    time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
}

type SourcesConfig struct {
	FirecrawlURL    string
	FirecrawlAPIKey string
	// file:// urls outside this directory are rejected; empty allows any path
	FileRoot string
}

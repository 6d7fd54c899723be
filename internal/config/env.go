package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	return FromEnv()
}

// builds the configuration from the current process environment
func FromEnv() (*Config, error) {
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := &Config{
		Environment: environment,
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Embedding: EmbeddingConfig{
			Provider:   getEnv("EMBEDDER_PROVIDER", ProviderTEI),
			URL:        getEnv("EMBEDDINGS_URL", "http://localhost:8081"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
			BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 32),
			MaxConns:   getEnvInt("EMBEDDING_MAX_CONNS", 8),
			RPS:        getEnvFloat("EMBEDDING_RPS", 20),
			Timeout:    getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			CacheSize:  getEnvInt("EMBEDDING_CACHE_SIZE", 1024),
		},
		Vector: VectorConfig{
			Backend:    getEnv("VECTOR_BACKEND", BackendPgvector),
			Collection: getEnv("VECTOR_COLLECTION", "documents"),
		},
		Lexical: LexicalConfig{
			IndexPath:       getEnv("BM25_INDEX_PATH", "./data/bm25_index.json"),
			PersistInterval: getEnvDuration("BM25_PERSIST_INTERVAL", 0),
			Workers:         getEnvInt("LEXICAL_WORKERS", 4),
		},
		Chunking: ChunkingConfig{
			MaxTokens:     getEnvInt("CHUNK_MAX_TOKENS", 512),
			OverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
			Tokenizer:     getEnv("CHUNK_TOKENIZER", "unicode"),
		},
		Queue: QueueConfig{
			Backend:       getEnv("QUEUE_BACKEND", BackendRedis),
			Concurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
			JobTimeout:    getEnvDuration("JOB_TIMEOUT", 5*time.Minute),
			MaxAttempts:   getEnvInt("JOB_MAX_ATTEMPTS", 3),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
		},
		Sources: SourcesConfig{
			FirecrawlURL:    getEnv("FIRECRAWL_API_URL", "https://api.firecrawl.dev"),
			FirecrawlAPIKey: os.Getenv("FIRECRAWL_API_KEY"),
			FileRoot:        os.Getenv("FILE_SOURCE_ROOT"),
		},
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RateLimit:       getEnv("RATE_LIMIT", "120-M"),
		RunWorkers:      getEnvBool("RUN_WORKERS", false),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		ContentCacheTTL: getEnvDuration("CONTENT_CACHE_TTL", 24*time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checks required values and cross-field constraints
func (c *Config) Validate() error {
	needsDatabase := c.Vector.Backend == BackendPgvector || c.MetricsEnabled
	if needsDatabase && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if c.Queue.Backend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}

	switch c.Vector.Backend {
	case BackendPgvector, BackendMemory:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendPgvector, BackendMemory, c.Vector.Backend)
	}

	switch c.Queue.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.Queue.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderTEI, ProviderHash:
	default:
		return fmt.Errorf("EMBEDDER_PROVIDER must be %q or %q, got %q", ProviderTEI, ProviderHash, c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}

	if c.Chunking.MaxTokens <= 0 || c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("CHUNK_OVERLAP_TOKENS must be >= 0 and smaller than CHUNK_MAX_TOKENS")
	}

	if c.Environment == "production" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET environment variable is required in production")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}

	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return fallback
	}

	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}

	return v
}

// accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}

	return fallback
}

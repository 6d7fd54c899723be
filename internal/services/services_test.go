package services

import (
	"context"
	"testing"
	"time"

	"codeberg.org/crawlsearch/server/internal/config"
	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// in-process configuration without external dependencies
func localConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Environment: "test",
		Embedding:   config.EmbeddingConfig{Provider: config.ProviderHash, Dimensions: 64, CacheSize: 16},
		Vector:      config.VectorConfig{Backend: config.BackendMemory, Collection: "documents"},
		Lexical:     config.LexicalConfig{Workers: 2},
		Chunking:    config.ChunkingConfig{MaxTokens: 64, OverlapTokens: 8, Tokenizer: "unicode"},
		Queue: config.QueueConfig{
			Backend:     config.BackendMemory,
			Concurrency: 2,
			JobTimeout:  time.Minute,
			MaxAttempts: 2,
		},
		JWTSecret: "test-secret",
	}
}

func TestNew_LocalPool(t *testing.T) {
	p, err := New(context.Background(), localConfig(t))
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.DB)
	assert.Nil(t, p.Redis)
	assert.Nil(t, p.Cache)
	assert.NotNil(t, p.Auth)
	assert.Equal(t, []string{"file", "http"}, p.Sources.Names())

	health := p.Health(context.Background())
	assert.Equal(t, StatusOK, health["vector_store"])
	assert.Equal(t, StatusOK, health["queue"])
	assert.Equal(t, StatusDisabled, health["postgres"])
}

func TestNew_RejectsRedisQueueWithoutRedis(t *testing.T) {
	cfg := localConfig(t)
	cfg.Queue.Backend = config.BackendRedis

	p, err := New(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestPool_EnqueuedDocumentBecomesSearchable(t *testing.T) {
	p, err := New(context.Background(), localConfig(t))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := p.NewWorkerPool()
	workers.Start(ctx)

	id, err := p.Broker.Enqueue(ctx, indexer.JobIndexDocument, indexer.IndexJobPayload{
		Document: document.Record{URL: "https://example.com/go", Markdown: "Goroutines and channels make Go concurrency simple."},
	}, p.JobOptions)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := p.Broker.Get(ctx, id)
		return err == nil && job.Status == queue.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := p.Retriever.Search(ctx, retriever.Request{Query: "goroutines channels"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "https://example.com/go", resp.Results[0].URL)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, workers.Stop(stopCtx))
}

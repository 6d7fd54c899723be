package documents

import (
	"context"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/sources"
	"codeberg.org/crawlsearch/server/internal/watches"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) (string, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

type Resolver interface {
	Resolve(rawURL string) (sources.Source, error)
}

type ContentCache interface {
	Get(ctx context.Context, rawURL string) (*document.Record, error)
	Set(ctx context.Context, rec *document.Record) error
}

type Deleter interface {
	DeleteDocument(ctx context.Context, url string) (*indexer.DeleteResult, error)
}

type VectorCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

type LexicalCounter interface {
	Count() int
}

// Deps are the handles the document endpoints need. Cache is optional.
type Deps struct {
	Queue      Enqueuer
	JobOptions queue.EnqueueOptions
	Sources    Resolver
	Cache      ContentCache
	Watches    watches.Repository
	Deleter    Deleter
	Vectors    VectorCounter
	Collection string
	Lexical    LexicalCounter
}

type IndexRequest struct {
	Document document.Record `json:"document"`
	CrawlID  string          `json:"crawl_id,omitempty"`
}

type ScrapeRequest struct {
	URL string `json:"url" binding:"required"`
	// skip the content cache
	Force bool `json:"force,omitempty"`
	Watch bool `json:"watch,omitempty"`
	// 0 uses the default watch interval
	WatchIntervalSeconds int `json:"watch_interval_seconds,omitempty"`
}

type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

type ScrapeResponse struct {
	JobAccepted
	Source string         `json:"source"`
	Cached bool           `json:"cached"`
	Watch  *watches.Watch `json:"watch,omitempty"`
}

type StatsResponse struct {
	Collection    string      `json:"collection"`
	VectorPoints  int         `json:"vector_points"`
	LexicalChunks int         `json:"lexical_chunks"`
	Queue         queue.Stats `json:"queue"`
	GeneratedAt   time.Time   `json:"generated_at"`
}

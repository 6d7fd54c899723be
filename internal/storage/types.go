package storage

import (
	"context"
	"errors"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidCollection  = errors.New("invalid collection name")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// VectorStore is a dense vector index keyed by deterministic point ids
type VectorStore interface {
	// creates the collection if missing; an existing collection must have the same dimension
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	// removes every point of url and writes points in one step
	ReplaceDocument(ctx context.Context, collection, url string, points []Point) error
	DeleteByURL(ctx context.Context, collection, url string) (int, error)
	Search(ctx context.Context, collection string, vector []float32, limit int, filter *document.Filter) ([]ScoredPoint, error)
	Count(ctx context.Context, collection string) (int, error)
	HealthCheck(ctx context.Context) bool
	Close()
}

// Payload is what a search hit carries back besides its score
type Payload struct {
	URL         string         `json:"url"`
	ChunkIndex  int            `json:"chunk_index"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Text        string         `json:"text"`
	Domain      string         `json:"domain,omitempty"`
	Language    string         `json:"language,omitempty"`
	Country     string         `json:"country,omitempty"`
	IsMobile    bool           `json:"is_mobile,omitempty"`
	CrawlID     string         `json:"crawl_id,omitempty"`
	IndexedAt   time.Time      `json:"indexed_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type ScoredPoint struct {
	ID      string
	Score   float32
	Payload Payload
}

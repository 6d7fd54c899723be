package sources

import (
	"context"
	"errors"

	"codeberg.org/crawlsearch/server/internal/document"
)

var (
	ErrNoSource       = errors.New("no content source can handle url")
	ErrFetchFailed    = errors.New("failed to fetch content")
	ErrNotConfigured  = errors.New("content source not configured")
	ErrUnsupportedURL = errors.New("unsupported url")
)

const (
	PriorityHTTP      = 10
	PriorityFirecrawl = 50
	PriorityFile      = 100
)

// Source fetches one url as a document. The set of implementations is closed:
// FirecrawlSource, HTTPSource and FileSource.
type Source interface {
	Name() string
	CanHandle(rawURL string) bool
	Fetch(ctx context.Context, rawURL string) (*document.Record, error)
	Priority() int

	sealed()
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	// strips navigation and footers
	OnlyMainContent bool `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool                 `json:"success"`
	Data    document.CrawledPage `json:"data"`
	Error   string               `json:"error,omitempty"`
}

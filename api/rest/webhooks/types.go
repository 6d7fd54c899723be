package webhooks

import (
	"context"

	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/queue"
)

// raw bodies above this size are rejected
const maxBodyBytes = 32 << 20

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts queue.EnqueueOptions) (string, error)
}

type Deps struct {
	// empty disables signature verification
	Secret     string
	Queue      Enqueuer
	JobOptions queue.EnqueueOptions
	Crawls     crawls.Repository
}

type Response struct {
	Event   string   `json:"event"`
	CrawlID string   `json:"crawl_id,omitempty"`
	JobIDs  []string `json:"job_ids,omitempty"`
	Skipped int      `json:"skipped,omitempty"`
	Ignored bool     `json:"ignored,omitempty"`
}

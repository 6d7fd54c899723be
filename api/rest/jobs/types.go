package jobs

import (
	"context"

	"codeberg.org/crawlsearch/server/internal/queue"
)

type JobReader interface {
	Get(ctx context.Context, id string) (*queue.Job, error)
}

// Sweeper reclaims stale jobs on demand
type Sweeper interface {
	Sweep(ctx context.Context) (queue.SweepResult, error)
}

// CrawlCleaner ends stale crawl sessions on demand
type CrawlCleaner interface {
	Cleanup(ctx context.Context) int
}

type SweepResponse struct {
	Jobs          queue.SweepResult `json:"jobs"`
	CrawlsExpired int               `json:"crawls_expired"`
}

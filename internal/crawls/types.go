package crawls

import (
	"context"
	"errors"
	"time"
)

var ErrCrawlNotFound = errors.New("crawl not found")

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// repository interface for crawl session persistence
type Repository interface {
	// Start registers a crawl; starting a known crawl only refreshes it
	Start(ctx context.Context, crawlID string, metadata map[string]any) (*Session, error)
	// RecordPage counts delivered pages, creating the session when the start event was missed
	RecordPage(ctx context.Context, crawlID string, pages int) error
	Complete(ctx context.Context, crawlID string) error
	Fail(ctx context.Context, crawlID, reason string) error
	Get(ctx context.Context, crawlID string) (*Session, error)
	// ListStale returns running crawls without activity since threshold
	ListStale(ctx context.Context, threshold time.Time) ([]*Session, error)
}

// Session is one crawl as seen through its webhook events
type Session struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PagesReceived int            `json:"pages_received"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	LastActivity  time.Time      `json:"last_activity"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

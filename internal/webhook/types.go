package webhook

import (
	"encoding/json"
	"errors"

	"codeberg.org/crawlsearch/server/internal/document"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// header carrying "sha256=<hex hmac of the raw body>"
const SignatureHeader = "X-Firecrawl-Signature"

type EventType string

const (
	EventCrawlStarted    EventType = "crawl.started"
	EventCrawlPage       EventType = "crawl.page"
	EventCrawlCompleted  EventType = "crawl.completed"
	EventCrawlFailed     EventType = "crawl.failed"
	EventBatchScrapePage EventType = "batch_scrape.page"
	EventScrapeCompleted EventType = "scrape.completed"
)

// Event is one crawler webhook delivery
type Event struct {
	Type    EventType              `json:"type"`
	ID      string                 `json:"id"`
	Success bool                   `json:"success"`
	Data    []document.CrawledPage `json:"data"`
	Error   string                 `json:"error,omitempty"`
	// echoed back from the crawl request
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CarriesPages reports whether the event delivers documents to index
func (e *Event) CarriesPages() bool {
	switch e.Type {
	case EventCrawlPage, EventBatchScrapePage, EventScrapeCompleted:
		return true
	default:
		return false
	}
}

// raw shape before data is normalized to a list
type rawEvent struct {
	Type     EventType       `json:"type"`
	ID       string          `json:"id"`
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    *string         `json:"error"`
	Metadata map[string]any  `json:"metadata"`
}

package lexical

import (
	"time"
)

const (
	DefaultK1               = 1.5
	DefaultB                = 0.75
	DefaultFilterOversample = 3

	schemaVersion = 1
)

type Options struct {
	// JSON file the index is loaded from and saved to; empty keeps the index in memory only
	Path string
	K1   float64
	B    float64
	// 0 saves synchronously after every mutation, otherwise a Flusher saves dirty state on this interval
	PersistInterval time.Duration
	// filtered searches score limit*FilterOversample candidates before filtering
	FilterOversample int
}

// Posting is one chunk as the lexical index stores it
type Posting struct {
	ID          string         `json:"id"`
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
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Hit struct {
	Posting
	Score float64
}

type entry struct {
	Posting
	Terms  map[string]int `json:"terms"`
	Length int            `json:"length"`
}

// on-disk layout
type snapshot struct {
	Version   int       `json:"version"`
	K1        float64   `json:"k1"`
	B         float64   `json:"b"`
	SavedAt   time.Time `json:"saved_at"`
	Documents []*entry  `json:"documents"`
}

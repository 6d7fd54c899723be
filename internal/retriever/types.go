package retriever

import (
	"context"
	"errors"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/lexical"
)

var (
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidMode       = errors.New("invalid search mode")
	ErrInvalidLimit      = errors.New("invalid limit or offset")
	ErrSearchUnavailable = errors.New("search unavailable")
)

type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	// alias of keyword
	ModeBM25 Mode = "bm25"
)

// State is where a query is in its lifecycle
type State string

const (
	StateDispatch       State = "dispatch"
	StateVectorPending  State = "vector_pending"
	StateLexicalPending State = "lexical_pending"
	StateFuse           State = "fuse"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	MaxOffset    = 1000

	// RRF damping constant
	RRFK = 60

	// hybrid branches fetch this many times the requested window
	DefaultCandidateMultiplier = 3

	// upper bound on chunks a branch fetches while looking for distinct urls
	MaxCandidates   = 10000
	candidateGrowth = 4
)

// LexicalSearcher is the keyword index as the retriever sees it
type LexicalSearcher interface {
	Search(ctx context.Context, query string, limit int, filter *document.Filter) ([]lexical.Hit, error)
}

type Request struct {
	Query   string           `json:"q"`
	Mode    Mode             `json:"mode,omitempty"`
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
	Filters *document.Filter `json:"filters,omitempty"`
	// dedupe by (url, chunk) instead of url
	ChunkLevel bool `json:"chunks,omitempty"`
}

// Result is one ranked hit. Ranks are 1-based and 0 when the branch did not return it.
type Result struct {
	URL          string         `json:"url"`
	ChunkIndex   int            `json:"chunk_index"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description,omitempty"`
	Text         string         `json:"text"`
	Domain       string         `json:"domain,omitempty"`
	Language     string         `json:"language,omitempty"`
	Country      string         `json:"country,omitempty"`
	IsMobile     bool           `json:"is_mobile,omitempty"`
	Score        float64        `json:"score"`
	VectorRank   int            `json:"vector_rank,omitempty"`
	VectorScore  float64        `json:"vector_score,omitempty"`
	LexicalRank  int            `json:"lexical_rank,omitempty"`
	LexicalScore float64        `json:"lexical_score,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	Results       []Result `json:"results"`
	Total         int      `json:"total"`
	Mode          Mode     `json:"mode"`
	Degraded      bool     `json:"degraded"`
	DegradedModes []Mode   `json:"degraded_modes,omitempty"`
	State         State    `json:"state"`
	TookMS        float64  `json:"took_ms"`
}

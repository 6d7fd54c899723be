package indexer

import (
	"context"

	"codeberg.org/crawlsearch/server/internal/chunker"
	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/lexical"
)

// error codes carried by a failed Result
const (
	CodeInvalidDocument    = "invalid_document"
	CodeChunkingFailed     = "chunking_failed"
	CodeEmbeddingFailed    = "embedding_failed"
	CodeVectorStoreFailed  = "vector_store_failed"
	CodeLexicalIndexFailed = "lexical_index_failed"
)

// stage names used for timings and metrics
const (
	StageChunk        = "chunk"
	StageEmbed        = "embed"
	StageVectorUpsert = "vector_upsert"
	StageLexicalAdd   = "lexical_add"
	StageDocument     = "document"
)

// queue job name handled by HandleJob
const JobIndexDocument = "index_document"

// Splitter turns document text into chunks
type Splitter interface {
	Chunk(text string, metadata map[string]any) []chunker.Chunk
}

// LexicalIndex is the keyword side of the index
type LexicalIndex interface {
	ReplaceDocument(ctx context.Context, url string, postings []lexical.Posting) error
	DeleteByURL(ctx context.Context, url string) (int, error)
}

// Ref ties an indexing run to the job and crawl that caused it
type Ref struct {
	JobID   string
	CrawlID string
}

// Result reports one document; failures are reported here, never raised
type Result struct {
	URL           string `json:"url"`
	Success       bool   `json:"success"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ErrorCode     string `json:"error_code,omitempty"`
	Error         string `json:"error,omitempty"`
	// milliseconds per stage
	Timings map[string]float64 `json:"timings_ms"`
}

// IndexJobPayload is the queue payload of an index_document job
type IndexJobPayload struct {
	Document document.Record `json:"document"`
	CrawlID  string          `json:"crawl_id,omitempty"`
}

type DeleteResult struct {
	URL             string `json:"url"`
	VectorsRemoved  int    `json:"vectors_removed"`
	PostingsRemoved int    `json:"postings_removed"`
}

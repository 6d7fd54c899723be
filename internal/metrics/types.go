package metrics

import (
	"context"
	"time"
)

// operation types
const (
	OpIndexing = "indexing"
	OpSearch   = "search"
	OpQueue    = "queue"
)

// Record is one timed operation
type Record struct {
	OperationType string
	OperationName string
	Duration      time.Duration
	Success       bool
	CrawlID       string
	JobID         string
	DocumentURL   string
	Error         string
	Metadata      map[string]any
	CreatedAt     time.Time
}

// Recorder accepts records without blocking or failing the caller
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// Sink persists a batch of records
type Sink interface {
	WriteRecords(ctx context.Context, records []Record) error
}

const (
	DefaultBufferSize    = 1024
	DefaultFlushInterval = 5 * time.Second
	DefaultBatchSize     = 200
)

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) {}

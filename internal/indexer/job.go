package indexer

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/crawlsearch/server/internal/queue"
)

var ErrIndexingFailed = errors.New("indexing failed")

// HandleJob adapts IndexDocument to the queue. Store and embedding failures are
// returned as retryable errors; bad documents fail permanently.
func (p *Pipeline) HandleJob(ctx context.Context, job *queue.Job) (any, error) {
	var payload IndexJobPayload
	if err := job.Decode(&payload); err != nil {
		return nil, queue.Permanent(err)
	}

	result := p.IndexDocument(ctx, &payload.Document, Ref{JobID: job.ID, CrawlID: payload.CrawlID})
	if result.Success {
		return result, nil
	}

	err := fmt.Errorf("%s: %s", result.ErrorCode, result.Error)

	switch result.ErrorCode {
	case CodeInvalidDocument, CodeChunkingFailed:
		return result, queue.Permanent(err)
	default:
		return result, errors.Join(ErrIndexingFailed, err)
	}
}

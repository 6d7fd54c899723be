package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/chunker"
	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/embedder"
	"codeberg.org/crawlsearch/server/internal/lexical"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/metrics"
	"codeberg.org/crawlsearch/server/internal/storage"
)

// Pipeline chunks, embeds and writes one document into both indexes
type Pipeline struct {
	splitter   Splitter
	embedder   embedder.Embedder
	vectors    storage.VectorStore
	collection string
	lexical    LexicalIndex
	recorder   metrics.Recorder
	now        func() time.Time
}

type Config struct {
	Splitter   Splitter
	Embedder   embedder.Embedder
	Vectors    storage.VectorStore
	Collection string
	Lexical    LexicalIndex
	Recorder   metrics.Recorder
}

func New(cfg Config) *Pipeline {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	return &Pipeline{
		splitter:   cfg.Splitter,
		embedder:   cfg.Embedder,
		vectors:    cfg.Vectors,
		collection: cfg.Collection,
		lexical:    cfg.Lexical,
		recorder:   recorder,
		now:        time.Now,
	}
}

// stageError carries the result code of the stage that failed
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// IndexDocument runs every stage for doc. Writes replace whatever the url had
// before, so running it twice leaves the same state as running it once.
func (p *Pipeline) IndexDocument(ctx context.Context, doc *document.Record, ref Ref) Result {
	started := p.now()
	result := Result{Timings: make(map[string]float64)}

	if doc != nil {
		result.URL = doc.URL
	}

	chunks, err := p.run(ctx, doc, ref, &result)

	if err != nil {
		var se *stageError
		if errors.As(err, &se) {
			result.ErrorCode = se.code
		} else {
			result.ErrorCode = CodeChunkingFailed
		}

		result.Error = err.Error()

		logger.Warn("document indexing failed",
			"url", result.URL,
			"job_id", ref.JobID,
			"crawl_id", ref.CrawlID,
			"error_code", result.ErrorCode,
			"error", err,
		)
	} else {
		result.Success = true
		result.ChunksIndexed = chunks
	}

	p.record(ctx, StageDocument, p.now().Sub(started), result.Success, ref, result.URL, result.Error, map[string]any{
		"chunks": result.ChunksIndexed,
	})

	return result
}

func (p *Pipeline) run(ctx context.Context, doc *document.Record, ref Ref, result *Result) (indexed int, err error) {
	stage := StageChunk

	defer func() {
		if r := recover(); r != nil {
			err = &stageError{code: codeFor(stage), err: fmt.Errorf("panic during %s: %v", stage, r)}
		}
	}()

	if doc == nil {
		return 0, &stageError{code: CodeInvalidDocument, err: fmt.Errorf("%w: nil document", document.ErrInvalidDocument)}
	}

	if err := doc.Validate(); err != nil {
		return 0, &stageError{code: CodeInvalidDocument, err: err}
	}

	if strings.TrimSpace(doc.Markdown) == "" {
		logger.Debug("document has no content, nothing to index", "url", doc.URL)
		return 0, nil
	}

	var chunks []chunker.Chunk
	err = p.timed(ctx, stage, ref, doc.URL, result, func() error {
		chunks = p.splitter.Chunk(doc.Markdown, doc.ChunkMetadata())
		return nil
	})

	if err != nil {
		return 0, err
	}

	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	stage = StageEmbed
	var vectors [][]float32
	err = p.timed(ctx, stage, ref, doc.URL, result, func() error {
		var err error
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		if err == nil && len(vectors) != len(chunks) {
			err = fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}
		return err
	})

	if err != nil {
		return 0, err
	}

	indexedAt := p.now().UTC()
	points := make([]storage.Point, len(chunks))
	postings := make([]lexical.Posting, len(chunks))

	for i, c := range chunks {
		id := document.PointID(doc.URL, c.ChunkIndex)

		points[i] = storage.Point{
			ID:     id,
			Vector: vectors[i],
			Payload: storage.Payload{
				URL:         doc.URL,
				ChunkIndex:  c.ChunkIndex,
				Title:       doc.Title,
				Description: doc.Description,
				Text:        c.Text,
				Domain:      doc.Domain(),
				Language:    strings.ToLower(doc.Language),
				Country:     strings.ToLower(doc.Country),
				IsMobile:    doc.IsMobile,
				CrawlID:     ref.CrawlID,
				IndexedAt:   indexedAt,
				Metadata:    doc.Metadata,
			},
		}

		postings[i] = lexical.Posting{
			ID:          id,
			URL:         doc.URL,
			ChunkIndex:  c.ChunkIndex,
			Title:       doc.Title,
			Description: doc.Description,
			Text:        c.Text,
			Domain:      doc.Domain(),
			Language:    strings.ToLower(doc.Language),
			Country:     strings.ToLower(doc.Country),
			IsMobile:    doc.IsMobile,
			CrawlID:     ref.CrawlID,
			Metadata:    doc.Metadata,
		}
	}

	// vector first: a failure here leaves the lexical side untouched
	stage = StageVectorUpsert
	err = p.timed(ctx, stage, ref, doc.URL, result, func() error {
		return p.vectors.ReplaceDocument(ctx, p.collection, doc.URL, points)
	})

	if err != nil {
		return 0, err
	}

	stage = StageLexicalAdd
	err = p.timed(ctx, stage, ref, doc.URL, result, func() error {
		return p.lexical.ReplaceDocument(ctx, doc.URL, postings)
	})

	if err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// IndexBatch indexes docs one after another. A failing document never stops the batch.
func (p *Pipeline) IndexBatch(ctx context.Context, docs []document.Record, ref Ref) []Result {
	results := make([]Result, 0, len(docs))
	succeeded := 0

	for i := range docs {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{
				URL:       docs[i].URL,
				ErrorCode: CodeChunkingFailed,
				Error:     err.Error(),
				Timings:   map[string]float64{},
			})
			continue
		}

		res := p.IndexDocument(ctx, &docs[i], ref)
		if res.Success {
			succeeded++
		}

		results = append(results, res)
	}

	logger.Info("batch indexed",
		"documents", len(docs),
		"succeeded", succeeded,
		"failed", len(docs)-succeeded,
		"crawl_id", ref.CrawlID,
	)

	return results
}

// DeleteDocument removes every chunk of url from both indexes
func (p *Pipeline) DeleteDocument(ctx context.Context, url string) (*DeleteResult, error) {
	vectors, err := p.vectors.DeleteByURL(ctx, p.collection, url)
	if err != nil {
		return nil, fmt.Errorf("failed to delete vectors: %w", err)
	}

	postings, err := p.lexical.DeleteByURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to delete postings: %w", err)
	}

	return &DeleteResult{URL: url, VectorsRemoved: vectors, PostingsRemoved: postings}, nil
}

func (p *Pipeline) timed(ctx context.Context, stage string, ref Ref, url string, result *Result, fn func() error) error {
	started := p.now()
	err := fn()
	elapsed := p.now().Sub(started)

	result.Timings[stage] = float64(elapsed.Microseconds()) / 1000

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	p.record(ctx, stage, elapsed, err == nil, ref, url, msg, nil)

	if err != nil {
		return &stageError{code: codeFor(stage), err: fmt.Errorf("%s: %w", stage, err)}
	}

	return nil
}

func (p *Pipeline) record(ctx context.Context, name string, d time.Duration, ok bool, ref Ref, url, errMsg string, meta map[string]any) {
	p.recorder.Record(ctx, metrics.Record{
		OperationType: metrics.OpIndexing,
		OperationName: name,
		Duration:      d,
		Success:       ok,
		CrawlID:       ref.CrawlID,
		JobID:         ref.JobID,
		DocumentURL:   url,
		Error:         errMsg,
		Metadata:      meta,
	})
}

func codeFor(stage string) string {
	switch stage {
	case StageEmbed:
		return CodeEmbeddingFailed
	case StageVectorUpsert:
		return CodeVectorStoreFailed
	case StageLexicalAdd:
		return CodeLexicalIndexFailed
	default:
		return CodeChunkingFailed
	}
}

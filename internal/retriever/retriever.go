package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeberg.org/crawlsearch/server/internal/embedder"
	"codeberg.org/crawlsearch/server/internal/executor"
	"codeberg.org/crawlsearch/server/internal/lexical"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/metrics"
	"codeberg.org/crawlsearch/server/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Retriever answers queries against the vector index, the lexical index or both
type Retriever struct {
	embedder            embedder.Embedder
	vectors             storage.VectorStore
	collection          string
	lexical             LexicalSearcher
	pool                *executor.Pool
	recorder            metrics.Recorder
	candidateMultiplier int
}

type Config struct {
	Embedder   embedder.Embedder
	Vectors    storage.VectorStore
	Collection string
	Lexical    LexicalSearcher
	// runs lexical scoring off the request goroutine
	Pool                *executor.Pool
	Recorder            metrics.Recorder
	CandidateMultiplier int
}

func New(cfg Config) *Retriever {
	if cfg.Pool == nil {
		cfg.Pool = executor.NewPool(0)
	}

	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NopRecorder{}
	}

	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}

	return &Retriever{
		embedder:            cfg.Embedder,
		vectors:             cfg.Vectors,
		collection:          cfg.Collection,
		lexical:             cfg.Lexical,
		pool:                cfg.Pool,
		recorder:            cfg.Recorder,
		candidateMultiplier: cfg.CandidateMultiplier,
	}
}

// tracks one query through its states
type queryState struct {
	mu    sync.Mutex
	state State
	trace []State
}

func (q *queryState) to(s State) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.state = s
	q.trace = append(q.trace, s)
}

func (q *queryState) current() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.state
}

// Search validates req, runs the branches its mode needs and returns the fused
// page. Invalid input is the only error for which no Response is returned.
// When every branch fails the Response is still returned, in the failed state,
// together with an error wrapping ErrSearchUnavailable.
func (r *Retriever) Search(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	mode, err := normalize(&req)
	if err != nil {
		return nil, err
	}

	qs := &queryState{}
	qs.to(StateDispatch)

	window := req.Limit + req.Offset

	var vectorHits, lexicalHits []Result
	var vectorErr, lexicalErr error

	switch mode {
	case ModeSemantic:
		qs.to(StateVectorPending)
		vectorHits, vectorErr = r.searchVector(ctx, req, window)

	case ModeKeyword:
		qs.to(StateLexicalPending)
		lexicalHits, lexicalErr = r.searchLexical(ctx, req, window)

	default:
		candidates := window * r.candidateMultiplier

		// branch errors are kept per branch so one failure never cancels the other
		var g errgroup.Group

		qs.to(StateVectorPending)
		g.Go(func() error {
			vectorHits, vectorErr = r.searchVector(ctx, req, candidates)
			return nil
		})

		qs.to(StateLexicalPending)
		g.Go(func() error {
			lexicalHits, lexicalErr = r.searchLexical(ctx, req, candidates)
			return nil
		})

		_ = g.Wait()
	}

	resp := &Response{Mode: mode, Results: []Result{}}

	if vectorErr != nil {
		resp.DegradedModes = append(resp.DegradedModes, ModeSemantic)
		logger.Warn("vector branch failed", "query_mode", mode, "error", vectorErr)
	}

	if lexicalErr != nil {
		resp.DegradedModes = append(resp.DegradedModes, ModeKeyword)
		logger.Warn("lexical branch failed", "query_mode", mode, "error", lexicalErr)
	}

	failed := (mode == ModeSemantic && vectorErr != nil) ||
		(mode == ModeKeyword && lexicalErr != nil) ||
		(mode == ModeHybrid && vectorErr != nil && lexicalErr != nil)

	if failed {
		qs.to(StateFailed)

		resp.Degraded = true
		resp.State = qs.current()
		resp.TookMS = elapsedMS(started)

		r.record(ctx, mode, started, false)
		return resp, fmt.Errorf("%w: %w", ErrSearchUnavailable, errors.Join(vectorErr, lexicalErr))
	}

	qs.to(StateFuse)

	var ranked []Result
	switch mode {
	case ModeSemantic:
		ranked = single(vectorHits, req.ChunkLevel, true)
	case ModeKeyword:
		ranked = single(lexicalHits, req.ChunkLevel, false)
	default:
		ranked = fuseRRF(vectorHits, lexicalHits, req.ChunkLevel, RRFK)
	}

	qs.to(StateDone)

	resp.Results = paginate(ranked, req.Offset, req.Limit)
	resp.Total = len(ranked)
	resp.Degraded = len(resp.DegradedModes) > 0
	resp.State = qs.current()
	resp.TookMS = elapsedMS(started)

	logger.Debug("search finished",
		"mode", mode,
		"states", qs.trace,
		"vector_hits", len(vectorHits),
		"lexical_hits", len(lexicalHits),
		"total", resp.Total,
		"degraded", resp.Degraded,
	)

	r.record(ctx, mode, started, true)
	return resp, nil
}

// searchVector returns at least want distinct dedup keys when the store holds them
func (r *Retriever) searchVector(ctx context.Context, req Request, want int) ([]Result, error) {
	vec, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return widen(want, req.ChunkLevel, func(limit int) ([]Result, error) {
		points, err := r.vectors.Search(ctx, r.collection, vec, limit, req.Filters)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}

		out := make([]Result, len(points))
		for i, p := range points {
			out[i] = fromPayload(p.Payload)
			out[i].VectorScore = float64(p.Score)
		}

		return out, nil
	})
}

func (r *Retriever) searchLexical(ctx context.Context, req Request, want int) ([]Result, error) {
	return widen(want, req.ChunkLevel, func(limit int) ([]Result, error) {
		hits, err := executor.Do(ctx, r.pool, func(ctx context.Context) ([]lexical.Hit, error) {
			return r.lexical.Search(ctx, req.Query, limit, req.Filters)
		})

		if err != nil {
			return nil, fmt.Errorf("lexical search failed: %w", err)
		}

		out := make([]Result, len(hits))
		for i, h := range hits {
			out[i] = fromPosting(h.Posting)
			out[i].LexicalScore = h.Score
		}

		return out, nil
	})
}

// widen refetches with a growing limit until the hits collapse to want keys,
// the branch runs dry or MaxCandidates is reached. Long documents spread over
// many chunks would otherwise crowd other urls out of the window.
func widen(want int, chunkLevel bool, fetch func(limit int) ([]Result, error)) ([]Result, error) {
	limit := min(want, MaxCandidates)

	for {
		hits, err := fetch(limit)
		if err != nil {
			return nil, err
		}

		if chunkLevel || len(hits) < limit || limit >= MaxCandidates || len(collapse(hits, false)) >= want {
			return hits, nil
		}

		limit = min(limit*candidateGrowth, MaxCandidates)
	}
}

func (r *Retriever) record(ctx context.Context, mode Mode, started time.Time, ok bool) {
	r.recorder.Record(ctx, metrics.Record{
		OperationType: metrics.OpSearch,
		OperationName: string(mode),
		Duration:      time.Since(started),
		Success:       ok,
	})
}

// validates req in place and resolves its mode
func normalize(req *Request) (Mode, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return "", fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}

	var mode Mode
	switch Mode(strings.ToLower(string(req.Mode))) {
	case "", ModeHybrid:
		mode = ModeHybrid
	case ModeSemantic:
		mode = ModeSemantic
	case ModeKeyword, ModeBM25:
		mode = ModeKeyword
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}

	if req.Limit < 1 || req.Limit > MaxLimit {
		return "", fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidLimit, MaxLimit)
	}

	if req.Offset < 0 || req.Offset > MaxOffset {
		return "", fmt.Errorf("%w: offset must be between 0 and %d", ErrInvalidLimit, MaxOffset)
	}

	if err := req.Filters.Normalize(); err != nil {
		return "", err
	}

	if req.Filters.IsEmpty() {
		req.Filters = nil
	}

	return mode, nil
}

func fromPayload(p storage.Payload) Result {
	return Result{
		URL:         p.URL,
		ChunkIndex:  p.ChunkIndex,
		Title:       p.Title,
		Description: p.Description,
		Text:        p.Text,
		Domain:      p.Domain,
		Language:    p.Language,
		Country:     p.Country,
		IsMobile:    p.IsMobile,
		Metadata:    p.Metadata,
	}
}

func fromPosting(p lexical.Posting) Result {
	return Result{
		URL:         p.URL,
		ChunkIndex:  p.ChunkIndex,
		Title:       p.Title,
		Description: p.Description,
		Text:        p.Text,
		Domain:      p.Domain,
		Language:    p.Language,
		Country:     p.Country,
		IsMobile:    p.IsMobile,
		Metadata:    p.Metadata,
	}
}

func elapsedMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}

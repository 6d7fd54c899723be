package lexical

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

var ErrInvalidPosting = errors.New("invalid posting")

// Index is a process-wide BM25 index. It is read from disk once, on first use,
// and afterwards memory is the source of truth; disk only receives saves.
type Index struct {
	opts     Options
	analyzer analysis.Analyzer

	mu          sync.RWMutex
	docs        map[string]*entry         // posting id -> entry
	postings    map[string]map[string]int // term -> posting id -> term frequency
	totalLength int
	dirty       bool

	saveMu sync.Mutex

	loadOnce sync.Once
	loads    atomic.Int32
}

// Open prepares the index without touching disk
func Open(opts Options) (*Index, error) {
	if opts.K1 <= 0 {
		opts.K1 = DefaultK1
	}

	if opts.B < 0 || opts.B > 1 {
		return nil, fmt.Errorf("bm25 b must be within [0, 1], got %v", opts.B)
	}

	if opts.B == 0 {
		opts.B = DefaultB
	}

	if opts.FilterOversample <= 0 {
		opts.FilterOversample = DefaultFilterOversample
	}

	analyzer, err := registry.NewCache().AnalyzerNamed(en.AnalyzerName)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyzer: %w", err)
	}

	return &Index{
		opts:     opts,
		analyzer: analyzer,
		docs:     make(map[string]*entry),
		postings: make(map[string]map[string]int),
	}, nil
}

// number of times the index was read from disk (at most one)
func (idx *Index) Loads() int {
	return int(idx.loads.Load())
}

func (idx *Index) ensureLoaded() {
	idx.loadOnce.Do(func() {
		idx.loads.Add(1)

		if idx.opts.Path == "" {
			return
		}

		snap, err := readSnapshot(idx.opts.Path)
		if err != nil {
			if !errors.Is(err, errNoSnapshot) {
				logger.Warn("bm25 index unreadable, starting empty", "path", idx.opts.Path, "error", err)
			}
			return
		}

		idx.mu.Lock()
		defer idx.mu.Unlock()

		for _, e := range snap.Documents {
			if e == nil || e.ID == "" {
				continue
			}

			idx.insertLocked(e)
		}

		logger.Info("bm25 index loaded", "path", idx.opts.Path, "documents", len(idx.docs))
	})
}

// Add indexes postings, replacing any with the same id
func (idx *Index) Add(ctx context.Context, postings []Posting) error {
	if err := validatePostings(postings); err != nil {
		return err
	}

	idx.ensureLoaded()
	entries := idx.analyzeAll(postings)

	idx.mu.Lock()
	for _, e := range entries {
		idx.removeLocked(e.ID)
		idx.insertLocked(e)
	}
	idx.dirty = true
	idx.mu.Unlock()

	idx.persist()
	return nil
}

// ReplaceDocument drops every posting of url and indexes postings in its place
func (idx *Index) ReplaceDocument(ctx context.Context, url string, postings []Posting) error {
	if err := validatePostings(postings); err != nil {
		return err
	}

	idx.ensureLoaded()
	entries := idx.analyzeAll(postings)

	idx.mu.Lock()
	idx.removeURLLocked(url)
	for _, e := range entries {
		idx.removeLocked(e.ID)
		idx.insertLocked(e)
	}
	idx.dirty = true
	idx.mu.Unlock()

	idx.persist()
	return nil
}

func (idx *Index) DeleteByURL(ctx context.Context, url string) (int, error) {
	idx.ensureLoaded()

	idx.mu.Lock()
	removed := idx.removeURLLocked(url)
	if removed > 0 {
		idx.dirty = true
	}
	idx.mu.Unlock()

	if removed > 0 {
		idx.persist()
	}

	return removed, nil
}

// Search ranks postings by BM25. Filters are applied to the top
// limit*FilterOversample candidates only, so filtered recall can fall short of limit.
func (idx *Index) Search(ctx context.Context, query string, limit int, filter *document.Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.ensureLoaded()

	if limit <= 0 {
		return []Hit{}, nil
	}

	terms := idx.queryTerms(query)
	if len(terms) == 0 {
		return []Hit{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return []Hit{}, nil
	}

	avgLen := float64(idx.totalLength) / float64(n)
	scores := make(map[string]float64)

	for _, term := range terms {
		docs := idx.postings[term]
		if len(docs) == 0 {
			continue
		}

		idf := idf(n, len(docs))

		for id, tf := range docs {
			length := float64(idx.docs[id].Length)
			norm := idx.opts.K1 * (1 - idx.opts.B + idx.opts.B*length/avgLen)
			scores[id] += idf * float64(tf) * (idx.opts.K1 + 1) / (float64(tf) + norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			hits = append(hits, Hit{Posting: idx.docs[id].Posting, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}

		return hits[i].ID < hits[j].ID
	})

	if !filter.IsEmpty() {
		hits = truncate(hits, limit*idx.opts.FilterOversample)
		filtered := hits[:0]

		for _, h := range hits {
			if filter.Matches(h.Domain, h.Language, h.Country, h.IsMobile) {
				filtered = append(filtered, h)
			}
		}

		hits = filtered
	}

	return truncate(hits, limit), nil
}

// number of indexed postings
func (idx *Index) Count() int {
	idx.ensureLoaded()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.docs)
}

func (idx *Index) analyzeAll(postings []Posting) []*entry {
	entries := make([]*entry, len(postings))

	for i, p := range postings {
		terms := make(map[string]int)
		length := 0

		for _, tok := range idx.analyzer.Analyze([]byte(p.Title + "\n" + p.Text)) {
			terms[string(tok.Term)]++
			length++
		}

		entries[i] = &entry{Posting: p, Terms: terms, Length: length}
	}

	return entries
}

// unique analyzed query terms in first-seen order
func (idx *Index) queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string

	for _, tok := range idx.analyzer.Analyze([]byte(query)) {
		term := string(tok.Term)
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	return terms
}

func (idx *Index) insertLocked(e *entry) {
	idx.docs[e.ID] = e
	idx.totalLength += e.Length

	for term, tf := range e.Terms {
		docs, ok := idx.postings[term]
		if !ok {
			docs = make(map[string]int)
			idx.postings[term] = docs
		}

		docs[e.ID] = tf
	}
}

func (idx *Index) removeLocked(id string) {
	e, ok := idx.docs[id]
	if !ok {
		return
	}

	for term := range e.Terms {
		docs := idx.postings[term]
		delete(docs, id)

		if len(docs) == 0 {
			delete(idx.postings, term)
		}
	}

	idx.totalLength -= e.Length
	delete(idx.docs, id)
}

func (idx *Index) removeURLLocked(url string) int {
	var ids []string

	for id, e := range idx.docs {
		if e.URL == url {
			ids = append(ids, id)
		}
	}

	for _, id := range ids {
		idx.removeLocked(id)
	}

	return len(ids)
}

// Lucene-style idf, always positive
func idf(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

func truncate(hits []Hit, n int) []Hit {
	if len(hits) > n {
		return hits[:n]
	}

	return hits
}

func validatePostings(postings []Posting) error {
	for i, p := range postings {
		if p.ID == "" || p.URL == "" {
			return fmt.Errorf("%w: posting %d needs an id and a url", ErrInvalidPosting, i)
		}
	}

	return nil
}

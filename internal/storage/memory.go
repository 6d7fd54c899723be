package storage

import (
	"context"
	"fmt"
	"math"
	"sync"

	"codeberg.org/crawlsearch/server/internal/document"
	"github.com/coder/hnsw"
)

// collections at or below this size are scanned exactly
const defaultExactScanThreshold = 1024

// MemoryStore is an in-process VectorStore backed by an HNSW graph per collection.
// Overwritten and deleted points are orphaned in the graph and the graph is
// rebuilt from the live points once orphans outnumber them.
type MemoryStore struct {
	mu                 sync.RWMutex
	collections        map[string]*memCollection
	exactScanThreshold int
}

type memCollection struct {
	dim     int
	graph   *hnsw.Graph[uint64]
	nextKey uint64
	keys    map[string]uint64 // point id -> live graph key
	points  map[uint64]*Point // live graph key -> point (vector normalized)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections:        make(map[string]*memCollection),
		exactScanThreshold: defaultExactScanThreshold,
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) HealthCheck(context.Context) bool {
	return true
}

func (s *MemoryStore) EnsureCollection(_ context.Context, name string, dim int) error {
	if !collectionNameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}

	if dim <= 0 {
		return fmt.Errorf("collection dimension must be positive, got %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dim != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d", ErrDimensionMismatch, name, c.dim, dim)
		}

		return nil
	}

	s.collections[name] = &memCollection{
		dim:    dim,
		graph:  newGraph(),
		keys:   make(map[string]uint64),
		points: make(map[uint64]*Point),
	}

	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	if err := c.validate(points); err != nil {
		return err
	}

	for _, p := range points {
		c.add(p)
	}

	c.compact()

	return nil
}

func (s *MemoryStore) ReplaceDocument(ctx context.Context, collection, url string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	if err := c.validate(points); err != nil {
		return err
	}

	c.deleteURL(url)

	for _, p := range points {
		c.add(p)
	}

	c.compact()

	return nil
}

func (s *MemoryStore) DeleteByURL(ctx context.Context, collection, url string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	removed := c.deleteURL(url)
	c.compact()

	return removed, nil
}

func (s *MemoryStore) Search(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
	filter *document.Filter,
) ([]ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dim, len(vector))
	}

	if limit <= 0 || len(c.points) == 0 {
		return []ScoredPoint{}, nil
	}

	query := normalized(vector)

	var results []ScoredPoint
	if !filter.IsEmpty() || len(c.points) <= s.exactScanThreshold {
		results = c.exactSearch(query, filter)
	} else {
		results = c.graphSearch(query, limit)
	}

	sortScored(results)

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	return len(c.points), nil
}

// caller holds s.mu
func (s *MemoryStore) collection(name string) (*memCollection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	return c, nil
}

func (c *memCollection) validate(points []Point) error {
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), c.dim)
		}
	}

	return nil
}

func (c *memCollection) add(p Point) {
	if old, ok := c.keys[p.ID]; ok {
		delete(c.points, old)
	}

	key := c.nextKey
	c.nextKey++

	stored := p
	stored.Vector = normalized(p.Vector)

	c.graph.Add(hnsw.MakeNode(key, stored.Vector))
	c.keys[p.ID] = key
	c.points[key] = &stored
}

func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return graph
}

// Graph.Delete can empty an upper layer and break the layer hierarchy that
// Search descends through, so dead nodes are dropped by rebuilding instead.
func (c *memCollection) compact() {
	if c.graph.Len()-len(c.points) <= len(c.points) {
		return
	}

	graph := newGraph()

	nodes := make([]hnsw.Node[uint64], 0, len(c.points))
	for key, p := range c.points {
		nodes = append(nodes, hnsw.MakeNode(key, p.Vector))
	}

	if len(nodes) > 0 {
		graph.Add(nodes...)
	}

	c.graph = graph
}

func (c *memCollection) deleteURL(url string) int {
	removed := 0

	for key, p := range c.points {
		if p.Payload.URL == url {
			delete(c.points, key)
			delete(c.keys, p.ID)
			removed++
		}
	}

	return removed
}

func (c *memCollection) exactSearch(query []float32, filter *document.Filter) []ScoredPoint {
	results := make([]ScoredPoint, 0, len(c.points))

	for _, p := range c.points {
		if !filter.Matches(p.Payload.Domain, p.Payload.Language, p.Payload.Country, p.Payload.IsMobile) {
			continue
		}

		results = append(results, ScoredPoint{ID: p.ID, Score: dot(query, p.Vector), Payload: p.Payload})
	}

	return results
}

func (c *memCollection) graphSearch(query []float32, limit int) []ScoredPoint {
	// orphaned nodes still occupy result slots until the next compaction
	orphans := c.graph.Len() - len(c.points)
	nodes := c.graph.Search(query, limit+orphans)

	results := make([]ScoredPoint, 0, limit)

	for _, node := range nodes {
		p, ok := c.points[node.Key]
		if !ok {
			continue
		}

		results = append(results, ScoredPoint{ID: p.ID, Score: 1 - c.graph.Distance(query, node.Value), Payload: p.Payload})
	}

	return results
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}

	if sum == 0 {
		return out
	}

	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}

	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}

	return s
}

package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/registry"
)

// HashEmbedder maps analyzed terms into a fixed number of buckets (feature hashing).
// It needs no inference server, which makes it the embedder for local runs and the CLI.
type HashEmbedder struct {
	dimensions int
	analyzer   analysis.Analyzer
}

func NewHashEmbedder(dimensions int) (*HashEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("hash embedder dimensions must be positive, got %d", dimensions)
	}

	analyzer, err := registry.NewCache().AnalyzerNamed(standard.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load analyzer: %w", err)
	}

	return &HashEmbedder{dimensions: dimensions, analyzer: analyzer}, nil
}

func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

func (h *HashEmbedder) Health(context.Context) error {
	return nil
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := filterEmpty(texts)
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	vectors := make([][]float32, len(inputs))

	for i, text := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors[i] = h.embed(text)
	}

	return vectors, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dimensions)

	for _, tok := range h.analyzer.Analyze([]byte(text)) {
		f := fnv.New64a()
		f.Write(tok.Term) //nolint:errcheck,gosec // hash writes never fail

		sum := f.Sum64()
		bucket := sum % uint64(h.dimensions)

		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	normalize(vec)
	return vec
}

// scales v to unit length; a zero vector gets a fixed direction so cosine stays defined
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	if sum == 0 {
		v[0] = 1
		return
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

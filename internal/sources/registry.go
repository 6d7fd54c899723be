package sources

import (
	"context"
	"fmt"
	"sort"

	"codeberg.org/crawlsearch/server/internal/document"
)

// Registry holds the configured sources ordered by descending priority
type Registry struct {
	sources []Source
}

func NewRegistry(sources ...Source) *Registry {
	sorted := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			sorted = append(sorted, s)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})

	return &Registry{sources: sorted}
}

// Resolve returns the highest-priority source that can handle rawURL
func (r *Registry) Resolve(rawURL string) (Source, error) {
	for _, s := range r.sources {
		if s.CanHandle(rawURL) {
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoSource, rawURL)
}

// Fetch resolves a source and fetches rawURL with it
func (r *Registry) Fetch(ctx context.Context, rawURL string) (*document.Record, error) {
	s, err := r.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	return s.Fetch(ctx, rawURL)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

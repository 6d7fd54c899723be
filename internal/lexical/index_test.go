package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posting(url string, idx int, domain, text string) Posting {
	return Posting{
		ID:         document.PointID(url, idx),
		URL:        url,
		ChunkIndex: idx,
		Text:       text,
		Domain:     domain,
		Language:   "en",
	}
}

func openIndex(t *testing.T, opts Options) *Index {
	t.Helper()

	idx, err := Open(opts)
	require.NoError(t, err)

	return idx
}

func seed(t *testing.T, idx *Index) {
	t.Helper()

	require.NoError(t, idx.Add(context.Background(), []Posting{
		posting("https://example.com/test", 0, "example.com", "This is a test document about Python programming."),
		posting("https://garden.org/tomatoes", 0, "garden.org", "Growing tomatoes requires sun, water and patience."),
		posting("https://example.com/go", 0, "example.com", "Go programming with goroutines and channels."),
	}))
}

func TestSearch_RanksMatchingDocuments(t *testing.T) {
	idx := openIndex(t, Options{})
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "Python programming", 10, nil)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://example.com/test", hits[0].URL)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, "https://example.com/go", hits[1].URL)
}

func TestSearch_NoMatches(t *testing.T) {
	idx := openIndex(t, Options{})
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "kubernetes", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "the and of", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits, "stop words alone match nothing")
}

func TestSearch_SingleDocumentScoresPositive(t *testing.T) {
	idx := openIndex(t, Options{})
	require.NoError(t, idx.Add(context.Background(), []Posting{
		posting("https://example.com/test", 0, "example.com", "This is a test document about Python programming."),
	}))

	hits, err := idx.Search(context.Background(), "python", 5, nil)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearch_FilterIsClientSide(t *testing.T) {
	idx := openIndex(t, Options{})
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "programming tomatoes", 10, &document.Filter{Domain: "garden.org"})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://garden.org/tomatoes", hits[0].URL)
}

func TestReplaceDocument_SupersedesPreviousChunks(t *testing.T) {
	idx := openIndex(t, Options{})
	ctx := context.Background()
	url := "https://example.com/page"

	require.NoError(t, idx.ReplaceDocument(ctx, url, []Posting{
		posting(url, 0, "example.com", "old content about cats"),
		posting(url, 1, "example.com", "more old content about cats"),
	}))

	require.NoError(t, idx.ReplaceDocument(ctx, url, []Posting{
		posting(url, 0, "example.com", "new content about dogs"),
	}))

	assert.Equal(t, 1, idx.Count())

	hits, err := idx.Search(ctx, "cats", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "dogs", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestAdd_SameIDTwiceKeepsOnePosting(t *testing.T) {
	idx := openIndex(t, Options{})
	p := posting("https://example.com/a", 0, "example.com", "python")

	require.NoError(t, idx.Add(context.Background(), []Posting{p}))
	require.NoError(t, idx.Add(context.Background(), []Posting{p}))

	assert.Equal(t, 1, idx.Count())
}

func TestAdd_RejectsInvalidPostings(t *testing.T) {
	idx := openIndex(t, Options{})

	err := idx.Add(context.Background(), []Posting{{Text: "no id"}})
	assert.ErrorIs(t, err, ErrInvalidPosting)
}

func TestDeleteByURL(t *testing.T) {
	idx := openIndex(t, Options{})
	seed(t, idx)

	removed, err := idx.DeleteByURL(context.Background(), "https://example.com/go")

	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, idx.Count())
}

func TestPersistence_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.json")

	first := openIndex(t, Options{Path: path})
	seed(t, first)

	_, err := os.Stat(path)
	require.NoError(t, err, "mutation saves synchronously")

	second := openIndex(t, Options{Path: path})
	assert.Equal(t, 3, second.Count())

	hits, err := second.Search(context.Background(), "python", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://example.com/test", hits[0].URL)
}

func TestPersistence_ConcurrentAddsAllReachDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.json")
	ctx := context.Background()

	for round := range 5 {
		require.NoError(t, os.RemoveAll(path))

		idx := openIndex(t, Options{Path: path})

		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				url := fmt.Sprintf("https://example.com/%d/%d", round, i)
				assert.NoError(t, idx.Add(ctx, []Posting{posting(url, 0, "example.com", "concurrent writers")}))
			}()
		}
		wg.Wait()

		assert.Equal(t, 16, idx.Count())
		assert.Equal(t, 16, openIndex(t, Options{Path: path}).Count(), "round %d", round)
	}
}

func TestLoad_HappensOnceAcrossReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.json")

	writer := openIndex(t, Options{Path: path})
	seed(t, writer)

	idx := openIndex(t, Options{Path: path})
	assert.Equal(t, 0, idx.Loads(), "opening does not touch disk")

	ctx := context.Background()
	for range 5 {
		_, err := idx.Search(ctx, "python", 5, nil)
		require.NoError(t, err)
	}

	// changes on disk after the first load are never picked up by reads
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"documents":[]}`), 0o644))

	for range 5 {
		hits, err := idx.Search(ctx, "python", 5, nil)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	}

	assert.Equal(t, 3, idx.Count())
	assert.Equal(t, 1, idx.Loads())
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	idx := openIndex(t, Options{Path: filepath.Join(t.TempDir(), "nested", "bm25.json")})

	assert.Equal(t, 0, idx.Count())

	require.NoError(t, idx.Add(context.Background(), []Posting{posting("https://a.com", 0, "a.com", "hello")}))

	_, err := os.Stat(filepath.Join(filepath.Dir(idx.opts.Path)))
	assert.NoError(t, err, "save creates the directory")
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	idx := openIndex(t, Options{Path: path})

	assert.Equal(t, 0, idx.Count())

	hits, err := idx.Search(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlusher_SavesOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.json")

	idx := openIndex(t, Options{Path: path, PersistInterval: time.Hour})
	flusher := NewFlusher(idx, time.Hour)
	flusher.Start()

	seed(t, idx)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "interval persistence defers the save")

	flusher.Stop()

	reloaded := openIndex(t, Options{Path: path})
	assert.Equal(t, 3, reloaded.Count())
}

func TestOpen_InvalidB(t *testing.T) {
	_, err := Open(Options{B: 1.5})
	assert.Error(t, err)
}

package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html lang="en-US">
<head>
  <title>Tomato Guide</title>
  <meta name="description" content="How to grow tomatoes">
  <style>body { color: red }</style>
</head>
<body>
  <nav>Home About</nav>
  <h1>Growing tomatoes</h1>
  <p>Tomatoes need sun and water.</p>
  <script>track()</script>
  <footer>copyright</footer>
</body>
</html>`

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	rec, err := NewHTTPSource().Fetch(context.Background(), srv.URL+"/tomatoes")

	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/tomatoes", rec.URL)
	assert.Equal(t, "Tomato Guide", rec.Title)
	assert.Equal(t, "How to grow tomatoes", rec.Description)
	assert.Equal(t, "en", rec.Language)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Contains(t, rec.Markdown, "Growing tomatoes")
	assert.Contains(t, rec.Markdown, "Tomatoes need sun and water.")
	assert.NotContains(t, rec.Markdown, "track()")
	assert.NotContains(t, rec.Markdown, "copyright")
	assert.NotContains(t, rec.Markdown, "color: red")
}

func TestHTTPSource_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  just text  "))
	}))
	defer srv.Close()

	rec, err := NewHTTPSource().Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "just text", rec.Markdown)
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPSource().Fetch(context.Background(), srv.URL)

	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFirecrawlSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req scrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/a", req.URL)
		assert.Equal(t, []string{"markdown"}, req.Formats)

		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# A","metadata":{"title":"A","sourceURL":"https://example.com/a","language":"de-DE","statusCode":200}}}`))
	}))
	defer srv.Close()

	rec, err := NewFirecrawlSource(srv.URL+"/", "fc-key").Fetch(context.Background(), "https://example.com/a")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", rec.URL)
	assert.Equal(t, "A", rec.Title)
	assert.Equal(t, "de", rec.Language)
	assert.Equal(t, "# A", rec.Markdown)
}

func TestFirecrawlSource_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"blocked by robots.txt"}`))
	}))
	defer srv.Close()

	_, err := NewFirecrawlSource(srv.URL, "fc-key").Fetch(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "robots.txt")

	_, err = NewFirecrawlSource(srv.URL, "").Fetch(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	content := "---\ntitle: Guide\ndescription: A short guide\nlanguage: EN\n---\nimport X from 'y'\n\n# Heading\n\nBody text."
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src := NewFileSource(dir)
	rawURL := "file://" + filepath.ToSlash(path)

	require.True(t, src.CanHandle(rawURL))

	rec, err := src.Fetch(context.Background(), rawURL)

	require.NoError(t, err)
	assert.Equal(t, "Guide", rec.Title)
	assert.Equal(t, "A short guide", rec.Description)
	assert.Equal(t, "en", rec.Language)
	assert.Contains(t, rec.Markdown, "Body text.")
	assert.NotContains(t, rec.Markdown, "import X")
}

func TestFileSource_RejectsOutsideRoot(t *testing.T) {
	src := NewFileSource(t.TempDir())

	assert.False(t, src.CanHandle("file:///etc/passwd.md"))
	assert.False(t, src.CanHandle("file:///tmp/image.png"))
	assert.False(t, src.CanHandle("https://example.com/a.md"))
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry(NewHTTPSource(), NewFileSource(""), NewFirecrawlSource("http://localhost", "key"))

	assert.Equal(t, []string{"file", "firecrawl", "http"}, registry.Names())

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com", "firecrawl"},
		{"file:///docs/readme.md", "file"},
	}

	for _, tt := range tests {
		s, err := registry.Resolve(tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Name(), tt.url)
	}

	_, err := registry.Resolve("ftp://example.com/file")
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestRegistry_FallsBackToHTTPWithoutAPIKey(t *testing.T) {
	registry := NewRegistry(NewFirecrawlSource("http://localhost", ""), NewHTTPSource())

	s, err := registry.Resolve("https://example.com")

	require.NoError(t, err)
	assert.Equal(t, "http", s.Name())
}

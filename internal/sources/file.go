package sources

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/chunker"
	"codeberg.org/crawlsearch/server/internal/document"
)

// FileSource reads local markdown through file:// urls
type FileSource struct {
	// when set, paths outside root are rejected
	root string
}

func NewFileSource(root string) *FileSource {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	return &FileSource{root: root}
}

func (s *FileSource) sealed() {}

func (s *FileSource) Name() string {
	return "file"
}

func (s *FileSource) Priority() int {
	return PriorityFile
}

func (s *FileSource) CanHandle(rawURL string) bool {
	_, err := s.path(rawURL)
	return err == nil
}

func (s *FileSource) Fetch(ctx context.Context, rawURL string) (*document.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(rawURL)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	page := chunker.ParseMarkdown(string(content))

	rec := &document.Record{
		URL:       "file://" + filepath.ToSlash(path),
		Title:     page.Title,
		Markdown:  page.Body,
		CrawledAt: time.Now().UTC(),
		Metadata:  page.Frontmatter,
	}

	if desc, ok := page.Frontmatter["description"].(string); ok {
		rec.Description = desc
	}

	if lang, ok := page.Frontmatter["language"].(string); ok {
		rec.Language = strings.ToLower(lang)
	}

	return rec, nil
}

func (s *FileSource) path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}

	switch strings.ToLower(filepath.Ext(u.Path)) {
	case ".md", ".mdx", ".markdown", ".txt":
	default:
		return "", fmt.Errorf("%w: not a markdown file: %s", ErrUnsupportedURL, rawURL)
	}

	path := filepath.Clean(filepath.FromSlash(u.Path))

	if s.root != "" {
		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: outside of %s", ErrUnsupportedURL, s.root)
		}
	}

	return path, nil
}

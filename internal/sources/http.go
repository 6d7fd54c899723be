package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxPageBytes = 5 << 20

// HTTPSource fetches a page directly and extracts its readable text
type HTTPSource struct {
	httpClient *http.Client
	userAgent  string
}

func NewHTTPSource() *HTTPSource {
	return &HTTPSource{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "crawlsearch/1.0",
	}
}

func (s *HTTPSource) sealed() {}

func (s *HTTPSource) Name() string {
	return "http"
}

func (s *HTTPSource) Priority() int {
	return PriorityHTTP
}

func (s *HTTPSource) CanHandle(rawURL string) bool {
	return isWebURL(rawURL)
}

func (s *HTTPSource) Fetch(ctx context.Context, rawURL string) (*document.Record, error) {
	if !isWebURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrFetchFailed, rawURL, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)

	rec := &document.Record{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		CrawledAt:  time.Now().UTC(),
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}

		rec.Markdown = strings.TrimSpace(string(text))
		return rec, nil
	}

	root, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse html: %w", ErrFetchFailed, err)
	}

	extract(root, rec)
	return rec, nil
}

// fills title, description, language and text from a parsed page
func extract(root *html.Node, rec *document.Record) {
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Svg:
				return
			case atom.Html:
				if lang := attr(n, "lang"); lang != "" {
					rec.Language = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
				}
			case atom.Title:
				if rec.Title == "" && n.FirstChild != nil {
					rec.Title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") {
					rec.Description = strings.TrimSpace(attr(n, "content"))
				}
			}
		}

		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if isBlock(n.Parent) && text.Len() > 0 {
					text.WriteString("\n\n")
				} else if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(t)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(root)
	rec.Markdown = text.String()
}

func isBlock(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}

	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Li, atom.Pre, atom.Blockquote, atom.Td:
		return true
	default:
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	return u.Scheme == "http" || u.Scheme == "https"
}

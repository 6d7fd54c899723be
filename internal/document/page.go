package document

import (
	"strings"
	"time"
)

// CrawledPage is a page as the crawler delivers it in webhooks and scrape responses
type CrawledPage struct {
	Markdown string       `json:"markdown"`
	Metadata PageMetadata `json:"metadata"`
}

type PageMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"sourceURL,omitempty"`
	URL         string `json:"url,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Country     string `json:"country,omitempty"`
	IsMobile    bool   `json:"mobile,omitempty"`
}

// Record converts the page; sourceURL wins over url when both are set
func (p *CrawledPage) Record() Record {
	url := p.Metadata.SourceURL
	if url == "" {
		url = p.Metadata.URL
	}

	lang := p.Metadata.Language
	// crawlers report locales like en-US
	if i := strings.IndexAny(lang, "-_"); i > 0 && len(lang) > 3 {
		lang = lang[:i]
	}

	return Record{
		URL:         strings.TrimSpace(url),
		Title:       p.Metadata.Title,
		Description: p.Metadata.Description,
		Markdown:    p.Markdown,
		Language:    strings.ToLower(lang),
		Country:     strings.ToLower(p.Metadata.Country),
		IsMobile:    p.Metadata.IsMobile,
		StatusCode:  p.Metadata.StatusCode,
		CrawledAt:   time.Now().UTC(),
	}
}

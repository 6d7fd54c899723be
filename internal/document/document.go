package document

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// namespace for deterministic point ids
var pointNamespace = uuid.MustParse("6f1c5d0e-8b1a-5c3e-9d7f-2a4b6c8d0e1f")

var (
	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
	codeRegex   = regexp.MustCompile(`^[a-z]{2,3}(-[a-z]{2})?$`)
)

// Record is a fetched page as delivered by the crawler or a content source
type Record struct {
	URL         string         `json:"url"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Markdown    string         `json:"markdown"`
	Language    string         `json:"language,omitempty"`
	Country     string         `json:"country,omitempty"`
	IsMobile    bool           `json:"is_mobile,omitempty"`
	StatusCode  int            `json:"status_code,omitempty"`
	CrawledAt   time.Time      `json:"crawled_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// checks the fields the index relies on
func (r *Record) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidDocument)
	}

	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: malformed url %q", ErrInvalidDocument, r.URL)
	}

	return nil
}

// lowercased host without a leading www.
func (r *Record) Domain() string {
	return DomainOf(r.URL)
}

// flattens the record into the payload carried by every chunk
func (r *Record) ChunkMetadata() map[string]any {
	meta := make(map[string]any, len(r.Metadata)+6)
	for k, v := range r.Metadata {
		meta[k] = v
	}

	meta["url"] = r.URL
	meta["title"] = r.Title
	meta["description"] = r.Description
	meta["domain"] = r.Domain()
	meta["language"] = strings.ToLower(r.Language)
	meta["country"] = strings.ToLower(r.Country)
	meta["is_mobile"] = r.IsMobile

	return meta
}

func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// deterministic id of the chunk at index within url
func PointID(rawURL string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(rawURL+"#"+strconv.Itoa(chunkIndex))).String()
}

// Filter narrows search results by document attributes
type Filter struct {
	Domain   string `json:"domain,omitempty"`
	Language string `json:"language,omitempty"`
	Country  string `json:"country,omitempty"`
	IsMobile *bool  `json:"is_mobile,omitempty"`
}

func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Domain == "" && f.Language == "" && f.Country == "" && f.IsMobile == nil)
}

// lowercases values and rejects malformed ones
func (f *Filter) Normalize() error {
	if f == nil {
		return nil
	}

	f.Domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f.Domain)), "www.")
	f.Language = strings.ToLower(strings.TrimSpace(f.Language))
	f.Country = strings.ToLower(strings.TrimSpace(f.Country))

	if f.Domain != "" && !domainRegex.MatchString(f.Domain) {
		return fmt.Errorf("%w: domain %q", ErrInvalidFilter, f.Domain)
	}

	if f.Language != "" && !codeRegex.MatchString(f.Language) {
		return fmt.Errorf("%w: language %q", ErrInvalidFilter, f.Language)
	}

	if f.Country != "" && !codeRegex.MatchString(f.Country) {
		return fmt.Errorf("%w: country %q", ErrInvalidFilter, f.Country)
	}

	return nil
}

// reports whether a chunk payload satisfies every set field
func (f *Filter) Matches(domain, language, country string, isMobile bool) bool {
	if f.IsEmpty() {
		return true
	}

	if f.Domain != "" && domain != f.Domain {
		return false
	}

	if f.Language != "" && language != f.Language {
		return false
	}

	if f.Country != "" && country != f.Country {
		return false
	}

	if f.IsMobile != nil && isMobile != *f.IsMobile {
		return false
	}

	return true
}

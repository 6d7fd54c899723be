package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
)

const (
	defaultFetchTimeout = 60 * time.Second
	maxErrorBody        = 512
)

// FirecrawlSource scrapes pages through the crawler's scrape API
type FirecrawlSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewFirecrawlSource(baseURL, apiKey string) *FirecrawlSource {
	return &FirecrawlSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultFetchTimeout},
	}
}

func (s *FirecrawlSource) sealed() {}

func (s *FirecrawlSource) Name() string {
	return "firecrawl"
}

func (s *FirecrawlSource) Priority() int {
	return PriorityFirecrawl
}

// without an api key the source never claims a url
func (s *FirecrawlSource) CanHandle(rawURL string) bool {
	return s.apiKey != "" && isWebURL(rawURL)
}

func (s *FirecrawlSource) Fetch(ctx context.Context, rawURL string) (*document.Record, error) {
	if s.apiKey == "" {
		return nil, ErrNotConfigured
	}

	jsonData, err := json.Marshal(scrapeRequest{URL: rawURL, Formats: []string{"markdown"}, OnlyMainContent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/scrape", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: scrape api returned %d: %s", ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, result.Error)
	}

	rec := result.Data.Record()
	if rec.URL == "" {
		rec.URL = rawURL
	}

	return &rec, nil
}

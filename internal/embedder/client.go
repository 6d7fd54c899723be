package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBatchSize = 32
	defaultMaxConns  = 8
	defaultTimeout   = 30 * time.Second
	healthTimeout    = 5 * time.Second
	maxErrorBody     = 512
)

// Client talks to a text-embeddings-inference compatible server
type Client struct {
	baseURL    string
	dimensions int
	batchSize  int
	retry      RetryConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)))
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retry:      cfg.Retry,
		limiter:    limiter,
		// requests beyond MaxConns wait for a free connection instead of failing
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     cfg.MaxConns,
				MaxIdleConns:        cfg.MaxConns,
				MaxIdleConnsPerHost: cfg.MaxConns,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (c *Client) Dimensions() int {
	return c.dimensions
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := filterEmpty(texts)
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	vectors := make([][]float32, 0, len(inputs))

	for start := 0; start < len(inputs); start += c.batchSize {
		end := min(start+c.batchSize, len(inputs))

		var batch [][]float32
		err := withRetry(ctx, c.retry, func() error {
			var err error
			batch, err = c.post(ctx, inputs[start:end])
			return err
		})
		if err != nil {
			return nil, err
		}

		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(batch), end-start)
		}

		for _, v := range batch {
			if c.dimensions > 0 && len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimensions, len(v))
			}
		}

		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// reports whether the inference server answers its health probe
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ServiceError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	return nil
}

func (c *Client) post(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(embedRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result, nil
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(body))
}

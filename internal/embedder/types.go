package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// returned when a batch has no non-empty inputs left to embed
	ErrEmptyBatch = errors.New("embedding batch is empty")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder turns text into dense vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// empty and whitespace-only inputs are dropped before embedding
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Health(ctx context.Context) error
}

// ServiceError is a non-2xx answer from the inference server
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service returned status %d: %s", e.StatusCode, e.Body)
}

// 429 and 5xx are worth retrying
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type ClientConfig struct {
	BaseURL    string
	Dimensions int // 0 accepts whatever the server returns
	BatchSize  int
	MaxConns   int
	RPS        float64 // 0 disables outbound rate limiting
	Timeout    time.Duration
	Retry      RetryConfig
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

type embedResponse [][]float32

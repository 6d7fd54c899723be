package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

// fake inference server returning [len(input), 1, 0] per input
func newEmbedServer(t *testing.T, calls *atomic.Int32, failFirst int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
			return
		case "/embed":
		default:
			http.NotFound(w, r)
			return
		}

		n := calls.Add(1)
		if int(n) <= failFirst {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 1, 0}
		}

		json.NewEncoder(w).Encode(out) //nolint:errcheck,gosec // test server
	}))
}

func TestClient_EmbedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimensions: 3, BatchSize: 2, Retry: fastRetry()})

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, int32(2), calls.Load(), "three inputs with batch size two take two requests")
}

func TestClient_FiltersEmptyInputs(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Retry: fastRetry()})

	vectors, err := c.EmbedBatch(context.Background(), []string{"", "hello", "   "})

	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, float32(5), vectors[0][0])
}

func TestClient_EmptyBatch(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Retry: fastRetry()})

	_, err := c.EmbedBatch(context.Background(), []string{"", " \n"})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = c.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyBatch)

	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 2)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Retry: fastRetry()})

	vec, err := c.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "input too long", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Retry: fastRetry()})

	_, err := c.Embed(context.Background(), "hello")

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, svcErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimensions: 768, Retry: fastRetry()})

	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClient_Health(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	assert.NoError(t, c.Health(context.Background()))

	srv.Close()
	assert.Error(t, c.Health(context.Background()))
}

func TestCachedEmbedder_ReusesVectors(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c := NewCachedEmbedder(NewClient(ClientConfig{BaseURL: srv.URL, Retry: fastRetry()}), 16)

	first, err := c.Embed(context.Background(), "python programming")
	require.NoError(t, err)

	second, err := c.Embed(context.Background(), "python programming")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	vectors, err := c.EmbedBatch(context.Background(), []string{"python programming", "go"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, int32(2), calls.Load(), "only the uncached text is sent")
}

func TestHashEmbedder(t *testing.T) {
	h, err := NewHashEmbedder(256)
	require.NoError(t, err)

	a, err := h.Embed(context.Background(), "Python programming")
	require.NoError(t, err)

	b, err := h.Embed(context.Background(), "This is a test document about Python programming.")
	require.NoError(t, err)

	c, err := h.Embed(context.Background(), "Gardening tips for tomatoes")
	require.NoError(t, err)

	assert.Len(t, a, 256)
	assert.Greater(t, dot(a, b), dot(a, c))

	again, err := h.Embed(context.Background(), "Python programming")
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestNewHashEmbedder_InvalidDimensions(t *testing.T) {
	_, err := NewHashEmbedder(0)
	assert.Error(t, err)
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}

	return s
}

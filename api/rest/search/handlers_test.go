package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	got  retriever.Request
	resp *retriever.Response
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, req retriever.Request) (*retriever.Response, error) {
	f.got = req
	return f.resp, f.err
}

func newRouter(s Searcher) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), s)
	return router
}

func okResponse() *retriever.Response {
	return &retriever.Response{
		Results: []retriever.Result{{URL: "https://example.com/test", Score: 0.03}},
		Total:   12,
		Mode:    retriever.ModeHybrid,
		State:   retriever.StateDone,
	}
}

func TestSearchHandler_GET(t *testing.T) {
	s := &fakeSearcher{resp: okResponse()}
	router := newRouter(s)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/search?q=python+programming&mode=semantic&limit=5&offset=5&language=en&mobile=false&chunks=true", nil))

	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "python programming", s.got.Query)
	assert.Equal(t, retriever.ModeSemantic, s.got.Mode)
	assert.Equal(t, 5, s.got.Limit)
	assert.Equal(t, 5, s.got.Offset)
	assert.True(t, s.got.ChunkLevel)
	require.NotNil(t, s.got.Filters)
	assert.Equal(t, "en", s.got.Filters.Language)
	require.NotNil(t, s.got.Filters.IsMobile)
	assert.False(t, *s.got.Filters.IsMobile)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "python programming", body["query"])
	assert.EqualValues(t, 12, body["total"])
	assert.Equal(t, true, body["pagination"].(map[string]any)["has_more"])
	assert.Len(t, body["results"], 1)
}

func TestSearchHandler_POST(t *testing.T) {
	s := &fakeSearcher{resp: okResponse()}
	router := newRouter(s)

	body := []byte(`{"q":"tomatoes","mode":"bm25","limit":3,"filters":{"domain":"garden.org"}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tomatoes", s.got.Query)
	assert.Equal(t, retriever.ModeBM25, s.got.Mode)
	assert.Equal(t, "garden.org", s.got.Filters.Domain)
}

func TestSearchHandler_InvalidInputIs400(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"query", retriever.ErrInvalidQuery},
		{"mode", retriever.ErrInvalidMode},
		{"limit", retriever.ErrInvalidLimit},
		{"filter", document.ErrInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakeSearcher{err: fmt.Errorf("%w: bad", tt.err)})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "validation_error")
		})
	}
}

func TestSearchHandler_MalformedParams(t *testing.T) {
	router := newRouter(&fakeSearcher{resp: okResponse()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x&limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte(`{`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandler_UnavailableStillAnswers200(t *testing.T) {
	resp := &retriever.Response{
		Results:       []retriever.Result{},
		Mode:          retriever.ModeHybrid,
		Degraded:      true,
		DegradedModes: []retriever.Mode{retriever.ModeSemantic, retriever.ModeKeyword},
		State:         retriever.StateFailed,
	}
	router := newRouter(&fakeSearcher{resp: resp, err: fmt.Errorf("%w: both down", retriever.ErrSearchUnavailable)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, true, body["degraded"])
	assert.Empty(t, body["results"])
}

package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

type fixture struct {
	router *gin.Engine
	broker *queue.MemoryBroker
	crawls *crawls.MemoryRepository
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{broker: queue.NewMemoryBroker(), crawls: crawls.NewMemoryRepository()}

	f.router = gin.New()
	RegisterRoutes(f.router.Group("/api/v1"), Deps{
		Secret: secret,
		Queue:  f.broker,
		Crawls: f.crawls,
	})

	return f
}

func (f *fixture) deliver(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/firecrawl", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const pageEvent = `{
	"success": true,
	"type": "crawl.page",
	"id": "crawl-1",
	"data": [
		{"markdown": "# One", "metadata": {"sourceURL": "https://example.com/1", "language": "en"}},
		{"markdown": "# Two", "metadata": {"sourceURL": "https://example.com/2"}},
		{"markdown": "no url", "metadata": {}}
	]
}`

func TestFirecrawlHandler_PageEventQueuesJobs(t *testing.T) {
	f := newFixture(t, secret)
	body := []byte(pageEvent)

	w := f.deliver(body, webhook.Sign(secret, body))

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.JobIDs, 2)
	assert.Equal(t, 1, resp.Skipped)

	job, err := f.broker.Get(context.Background(), resp.JobIDs[0])
	require.NoError(t, err)

	var payload indexer.IndexJobPayload
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, "https://example.com/1", payload.Document.URL)
	assert.Equal(t, "crawl-1", payload.CrawlID)

	session, err := f.crawls.Get(context.Background(), "crawl-1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.PagesReceived)
}

func TestFirecrawlHandler_RejectsBadSignature(t *testing.T) {
	f := newFixture(t, secret)
	body := []byte(pageEvent)

	for _, sig := range []string{"", "sha256=00", webhook.Sign("other", body)} {
		w := f.deliver(body, sig)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_signature")
	}

	stats, err := f.broker.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
}

func TestFirecrawlHandler_NoSecretSkipsVerification(t *testing.T) {
	f := newFixture(t, "")

	w := f.deliver([]byte(pageEvent), "")

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestFirecrawlHandler_CrawlLifecycle(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	require.Equal(t, http.StatusAccepted, f.deliver([]byte(`{"type":"crawl.started","id":"c1","metadata":{"project":"docs"}}`), "").Code)

	s, err := f.crawls.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, crawls.StatusRunning, s.Status)

	require.Equal(t, http.StatusAccepted, f.deliver([]byte(`{"type":"crawl.completed","id":"c1","success":true}`), "").Code)

	s, err = f.crawls.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, crawls.StatusCompleted, s.Status)

	// failure of a crawl that was never started
	require.Equal(t, http.StatusAccepted, f.deliver([]byte(`{"type":"crawl.failed","id":"c2","error":"blocked"}`), "").Code)

	s, err = f.crawls.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, crawls.StatusFailed, s.Status)
	assert.Equal(t, "blocked", s.Error)
}

func TestFirecrawlHandler_InvalidAndUnknownEvents(t *testing.T) {
	f := newFixture(t, "")

	assert.Equal(t, http.StatusBadRequest, f.deliver([]byte(`not json`), "").Code)

	w := f.deliver([]byte(`{"type":"batch_scrape.started","id":"b1"}`), "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"ignored":true`)
}

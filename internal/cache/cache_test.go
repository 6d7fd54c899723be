package cache

import (
	"context"
	"testing"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, ttl time.Duration) (*ContentCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewContentCache(client, ttl), mr
}

func TestContentCache_SetGet(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	ctx := context.Background()

	rec := &document.Record{URL: "https://example.com/a", Title: "A", Markdown: "body", Language: "en"}
	require.NoError(t, c.Set(ctx, rec))

	got, err := c.Get(ctx, "https://example.com/a")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "body", got.Markdown)
}

func TestContentCache_Miss(t *testing.T) {
	c, _ := newCache(t, time.Hour)

	got, err := c.Get(context.Background(), "https://example.com/missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestContentCache_Expires(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &document.Record{URL: "https://example.com/a", Markdown: "x"}))
	assert.Equal(t, time.Minute, mr.TTL(key("https://example.com/a")))

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestContentCache_KeyIsHashed(t *testing.T) {
	k := key("https://example.com/a?q=1")

	assert.Len(t, k, len("crawlsearch:content:")+64)
	assert.NotContains(t, k, "example.com")
}

func TestContentCache_Delete(t *testing.T) {
	c, _ := newCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &document.Record{URL: "https://example.com/a"}))
	require.NoError(t, c.Delete(ctx, "https://example.com/a"))

	got, err := c.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

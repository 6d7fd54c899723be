package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"github.com/redis/go-redis/v9"
)

const (
	// crawlsearch:content:{sha256(url)} -> JSON document record
	keyContent = "crawlsearch:content:%s"

	DefaultTTL = 24 * time.Hour
)

// ContentCache keeps fetched documents in redis so repeated scrapes of the same
// url skip the content source
type ContentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewContentCache(client *redis.Client, ttl time.Duration) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &ContentCache{client: client, ttl: ttl}
}

func key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf(keyContent, hex.EncodeToString(sum[:]))
}

// Get returns the cached record for rawURL, or nil when there is none
func (c *ContentCache) Get(ctx context.Context, rawURL string) (*document.Record, error) {
	data, err := c.client.Get(ctx, key(rawURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read cached content: %w", err)
	}

	var rec document.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached content: %w", err)
	}

	return &rec, nil
}

func (c *ContentCache) Set(ctx context.Context, rec *document.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	if err := c.client.Set(ctx, key(rec.URL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache content: %w", err)
	}

	return nil
}

func (c *ContentCache) Delete(ctx context.Context, rawURL string) error {
	return c.client.Del(ctx, key(rawURL)).Err()
}

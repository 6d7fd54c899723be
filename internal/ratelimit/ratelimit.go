package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const keyPrefix = "crawlsearch:ratelimit"

// paths that bypass rate limiting
var defaultExemptPaths = []string{"/health", "/api/v1/ping", "/api/v1/webhooks"}

// Limiter throttles requests per client ip
type Limiter struct {
	limiter     *limiter.Limiter
	exemptPaths []string
}

// New builds a limiter from an ulule formatted rate ("120-M"). A nil client
// keeps counters in process memory.
func New(formatted string, client *redis.Client) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:   keyPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          keyPrefix,
			CleanUpInterval: time.Minute,
		})
	}

	return &Limiter{
		limiter:     limiter.New(store, rate),
		exemptPaths: defaultExemptPaths,
	}, nil
}

func (l *Limiter) isExempt(path string) bool {
	for _, p := range l.exemptPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware rejects clients over the rate with 429. Store failures let the
// request through.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		ip := c.ClientIP()

		lctx, err := l.limiter.Get(c.Request.Context(), ip)
		if err != nil {
			logger.ErrorErr(err, "rate limit store unavailable", "ip", ip)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			logger.Warn("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)

			retryAfter := max(1, lctx.Reset-time.Now().Unix())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			errors.TooManyRequests(c, "too many requests. please slow down.")
			return
		}

		c.Next()
	}
}

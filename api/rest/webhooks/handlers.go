package webhooks

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"codeberg.org/crawlsearch/server/internal/crawls"
	"codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/webhook"
	"github.com/gin-gonic/gin"
)

// FirecrawlHandler godoc
// @Summary Receive crawler webhook events
// @Description Page events queue one indexing job per page; lifecycle events update the crawl session
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Firecrawl-Signature header string false "sha256=<hex hmac of the body>"
// @Success 202 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/webhooks/firecrawl [post]
func FirecrawlHandler(deps Deps) gin.HandlerFunc {
	if deps.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			errors.BadRequest(c, "failed to read body", err)
			return
		}

		if err := webhook.Verify(deps.Secret, body, c.GetHeader(webhook.SignatureHeader)); err != nil {
			logger.Warn("webhook signature rejected", "ip", c.ClientIP(), "error", err)
			errors.InvalidSignature(c)
			return
		}

		event, err := webhook.Decode(body)
		if err != nil {
			errors.ValidationError(c, err)
			return
		}

		ctx := c.Request.Context()
		resp := Response{Event: string(event.Type), CrawlID: event.ID}

		switch {
		case event.CarriesPages():
			ids, skipped, err := enqueuePages(ctx, deps, event)
			if err != nil {
				// the crawler retries deliveries that are not 2xx
				errors.ServiceUnavailable(c, "failed to queue pages", err)
				return
			}

			resp.JobIDs, resp.Skipped = ids, skipped

			if event.ID != "" && len(ids) > 0 {
				if err := deps.Crawls.RecordPage(ctx, event.ID, len(ids)); err != nil {
					logger.ErrorErr(err, "failed to record crawl pages", "crawl_id", event.ID)
				}
			}

		case event.Type == webhook.EventCrawlStarted:
			if _, err := deps.Crawls.Start(ctx, event.ID, event.Metadata); err != nil {
				logger.ErrorErr(err, "failed to start crawl session", "crawl_id", event.ID)
			}

		case event.Type == webhook.EventCrawlCompleted:
			finishCrawl(ctx, deps, event.ID, func() error { return deps.Crawls.Complete(ctx, event.ID) })

		case event.Type == webhook.EventCrawlFailed:
			finishCrawl(ctx, deps, event.ID, func() error { return deps.Crawls.Fail(ctx, event.ID, event.Error) })

		default:
			logger.Debug("ignoring webhook event", "type", event.Type)
			resp.Ignored = true
		}

		c.JSON(http.StatusAccepted, resp)
	}
}

func enqueuePages(ctx context.Context, deps Deps, event *webhook.Event) (ids []string, skipped int, err error) {
	for i := range event.Data {
		rec := event.Data[i].Record()

		if err := rec.Validate(); err != nil {
			logger.Warn("skipping webhook page", "crawl_id", event.ID, "error", err)
			skipped++
			continue
		}

		id, err := deps.Queue.Enqueue(ctx, indexer.JobIndexDocument, indexer.IndexJobPayload{
			Document: rec,
			CrawlID:  event.ID,
		}, deps.JobOptions)

		if err != nil {
			return ids, skipped, err
		}

		ids = append(ids, id)
	}

	return ids, skipped, nil
}

// a finish event for a crawl whose start was never seen registers it first
func finishCrawl(ctx context.Context, deps Deps, crawlID string, finish func() error) {
	if crawlID == "" {
		return
	}

	err := finish()
	if stderrors.Is(err, crawls.ErrCrawlNotFound) {
		if _, err = deps.Crawls.Start(ctx, crawlID, nil); err == nil {
			err = finish()
		}
	}

	if err != nil {
		logger.ErrorErr(err, "failed to finish crawl session", "crawl_id", crawlID)
	}
}

package documents

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/indexer"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/queue"
	"codeberg.org/crawlsearch/server/internal/sources"
	"codeberg.org/crawlsearch/server/internal/watches"
	"github.com/gin-gonic/gin"
)

// IndexHandler godoc
// @Summary Queue a document for indexing
// @Description Indexing runs on a worker; poll the returned job id for the outcome
// @Tags documents
// @Accept json
// @Produce json
// @Param request body IndexRequest true "Document to index"
// @Success 202 {object} JobAccepted
// @Failure 400 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/v1/documents [post]
func IndexHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IndexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if err := req.Document.Validate(); err != nil {
			errors.ValidationError(c, err)
			return
		}

		id, err := deps.Queue.Enqueue(c.Request.Context(), indexer.JobIndexDocument, indexer.IndexJobPayload{
			Document: req.Document,
			CrawlID:  req.CrawlID,
		}, deps.JobOptions)

		if err != nil {
			errors.ServiceUnavailable(c, "failed to queue document", err)
			return
		}

		c.JSON(http.StatusAccepted, JobAccepted{
			JobID:  id,
			Status: string(queue.StatusQueued),
			URL:    req.Document.URL,
		})
	}
}

// ScrapeHandler godoc
// @Summary Fetch a url through a content source and queue it for indexing
// @Tags documents
// @Accept json
// @Produce json
// @Param request body ScrapeRequest true "Url to scrape"
// @Success 202 {object} ScrapeResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /api/v1/scrape [post]
func ScrapeHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		ctx := c.Request.Context()
		req.URL = strings.TrimSpace(req.URL)

		source, err := deps.Sources.Resolve(req.URL)
		if err != nil {
			errors.BadRequest(c, "no content source can handle this url", err)
			return
		}

		resp := ScrapeResponse{Source: source.Name()}

		rec, err := cachedRecord(c, deps, req)
		if err != nil {
			logger.Warn("content cache read failed", "url", req.URL, "error", err)
		}

		if rec != nil {
			resp.Cached = true
		} else {
			rec, err = source.Fetch(ctx, req.URL)
			if err != nil {
				if stderrors.Is(err, sources.ErrUnsupportedURL) {
					errors.BadRequest(c, "unsupported url", err)
					return
				}

				logger.ErrorErr(err, "content fetch failed", "url", req.URL, "source", source.Name())
				c.JSON(http.StatusBadGateway, errors.ErrorResponse{
					Error:   "fetch_failed",
					Message: "failed to fetch content",
				})
				return
			}

			if deps.Cache != nil {
				if err := deps.Cache.Set(ctx, rec); err != nil {
					logger.Warn("content cache write failed", "url", req.URL, "error", err)
				}
			}
		}

		id, err := deps.Queue.Enqueue(ctx, indexer.JobIndexDocument, indexer.IndexJobPayload{Document: *rec}, deps.JobOptions)
		if err != nil {
			errors.ServiceUnavailable(c, "failed to queue document", err)
			return
		}

		resp.JobAccepted = JobAccepted{JobID: id, Status: string(queue.StatusQueued), URL: rec.URL}

		if req.Watch {
			interval := time.Duration(req.WatchIntervalSeconds) * time.Second

			w, err := deps.Watches.Ensure(ctx, rec.URL, interval)
			switch {
			case stderrors.Is(err, watches.ErrInvalidInterval):
				logger.Warn("watch not created", "url", rec.URL, "interval", interval)
			case err != nil:
				logger.ErrorErr(err, "failed to create watch", "url", rec.URL)
			default:
				resp.Watch = w
			}
		}

		c.JSON(http.StatusAccepted, resp)
	}
}

func cachedRecord(c *gin.Context, deps Deps, req ScrapeRequest) (*document.Record, error) {
	if deps.Cache == nil || req.Force {
		return nil, nil
	}

	return deps.Cache.Get(c.Request.Context(), req.URL)
}

// StatsHandler reports index sizes and queue depth
func StatsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		points, err := deps.Vectors.Count(ctx, deps.Collection)
		if err != nil {
			errors.InternalError(c, "failed to count vectors", err)
			return
		}

		queueStats, err := deps.Queue.Stats(ctx)
		if err != nil {
			errors.ServiceUnavailable(c, "failed to read queue stats", err)
			return
		}

		c.JSON(http.StatusOK, StatsResponse{
			Collection:    deps.Collection,
			VectorPoints:  points,
			LexicalChunks: deps.Lexical.Count(),
			Queue:         queueStats,
			GeneratedAt:   time.Now().UTC(),
		})
	}
}

// DeleteHandler godoc
// @Summary Remove a document from both indexes (admin)
// @Tags admin
// @Produce json
// @Param url query string true "Document url"
// @Success 200 {object} indexer.DeleteResult
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /api/v1/admin/documents [delete]
// @Security BearerAuth
func DeleteHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := strings.TrimSpace(c.Query("url"))
		if url == "" {
			errors.BadRequest(c, "url query parameter required", nil)
			return
		}

		result, err := deps.Deleter.DeleteDocument(c.Request.Context(), url)
		if err != nil {
			errors.InternalError(c, "failed to delete document", err)
			return
		}

		if result.VectorsRemoved == 0 && result.PostingsRemoved == 0 {
			errors.NotFound(c, "document")
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

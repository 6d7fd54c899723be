package jobs

import (
	stderrors "errors"
	"net/http"

	"codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/queue"
	"github.com/gin-gonic/gin"
)

// GetJobHandler godoc
// @Summary Get a job's status and result
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} queue.Job
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/jobs/{id} [get]
func GetJobHandler(reader JobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !errors.IsValidUUID(id) {
			errors.JobNotFound(c)
			return
		}

		job, err := reader.Get(c.Request.Context(), id)
		if stderrors.Is(err, queue.ErrJobNotFound) {
			errors.JobNotFound(c)
			return
		}

		if err != nil {
			errors.ServiceUnavailable(c, "failed to read job", err)
			return
		}

		c.JSON(http.StatusOK, job)
	}
}

// SweepHandler runs one job sweep and crawl cleanup pass immediately
func SweepHandler(sweeper Sweeper, crawls CrawlCleaner) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := sweeper.Sweep(c.Request.Context())
		if err != nil {
			errors.ServiceUnavailable(c, "failed to sweep jobs", err)
			return
		}

		resp := SweepResponse{Jobs: result}
		if crawls != nil {
			resp.CrawlsExpired = crawls.Cleanup(c.Request.Context())
		}

		c.JSON(http.StatusOK, resp)
	}
}

package search

import (
	stderrors "errors"
	"net/http"

	"codeberg.org/crawlsearch/server/api/rest/pagination"
	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/retriever"
	"github.com/gin-gonic/gin"
)

// SearchHandler godoc
// @Summary Search indexed documents
// @Description Hybrid (default), semantic or keyword search. A degraded or failed search still answers 200.
// @Tags search
// @Produce json
// @Param q query string true "Query text"
// @Param mode query string false "hybrid, semantic, keyword or bm25"
// @Param limit query int false "Results per page (1-100)"
// @Param offset query int false "Results to skip (0-1000)"
// @Param domain query string false "Domain filter"
// @Param language query string false "Language filter"
// @Param country query string false "Country filter"
// @Param mobile query bool false "Mobile filter"
// @Param chunks query bool false "Deduplicate per chunk instead of per url"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Router /api/v1/search [get]
func SearchHandler(searcher Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q Query
		if err := c.ShouldBindQuery(&q); err != nil {
			errors.ValidationError(c, err)
			return
		}

		req := retriever.Request{
			Query:      q.Q,
			Mode:       retriever.Mode(q.Mode),
			Limit:      q.Limit,
			Offset:     q.Offset,
			ChunkLevel: q.Chunks,
			Filters: &document.Filter{
				Domain:   q.Domain,
				Language: q.Language,
				Country:  q.Country,
				IsMobile: q.Mobile,
			},
		}

		respond(c, searcher, req)
	}
}

// SearchPostHandler accepts the same request as a JSON body
func SearchPostHandler(searcher Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req retriever.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		respond(c, searcher, req)
	}
}

func respond(c *gin.Context, searcher Searcher, req retriever.Request) {
	resp, err := searcher.Search(c.Request.Context(), req)

	if err != nil && isInvalidInput(err) {
		errors.ValidationError(c, err)
		return
	}

	if err != nil && resp == nil {
		errors.InternalError(c, "search failed", err)
		return
	}

	if err != nil {
		logger.Warn("search unavailable", "error", err, "mode", resp.Mode)
	}

	limit := req.Limit
	if limit == 0 {
		limit = retriever.DefaultLimit
	}

	c.JSON(http.StatusOK, Response{
		Response: resp,
		Query:    req.Query,
		Pagination: pagination.NewMeta(pagination.Params{
			Limit:  limit,
			Offset: req.Offset,
		}, resp.Total),
	})
}

func isInvalidInput(err error) bool {
	return stderrors.Is(err, retriever.ErrInvalidQuery) ||
		stderrors.Is(err, retriever.ErrInvalidMode) ||
		stderrors.Is(err, retriever.ErrInvalidLimit) ||
		stderrors.Is(err, document.ErrInvalidFilter)
}

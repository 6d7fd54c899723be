package search

import (
	"context"

	"codeberg.org/crawlsearch/server/api/rest/pagination"
	"codeberg.org/crawlsearch/server/internal/retriever"
)

// Searcher runs a query against the indexes
type Searcher interface {
	Search(ctx context.Context, req retriever.Request) (*retriever.Response, error)
}

// Query is the GET form of a search request
type Query struct {
	Q        string `form:"q"`
	Mode     string `form:"mode"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
	Domain   string `form:"domain"`
	Language string `form:"language"`
	Country  string `form:"country"`
	Mobile   *bool  `form:"mobile"`
	Chunks   bool   `form:"chunks"`
}

type Response struct {
	*retriever.Response
	Query      string          `json:"query"`
	Pagination pagination.Meta `json:"pagination"`
}

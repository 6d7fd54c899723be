package search

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, searcher Searcher) {
	router.GET("/search", SearchHandler(searcher))
	router.POST("/search", SearchPostHandler(searcher))
}

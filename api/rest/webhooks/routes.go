package webhooks

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, deps Deps) {
	router.POST("/webhooks/firecrawl", FirecrawlHandler(deps))
}

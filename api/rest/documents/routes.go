package documents

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, deps Deps) {
	router.POST("/documents", IndexHandler(deps))
	router.GET("/documents/stats", StatsHandler(deps))
	router.POST("/scrape", ScrapeHandler(deps))
}

// RegisterAdminRoutes expects admin to already carry the auth middleware
func RegisterAdminRoutes(admin *gin.RouterGroup, deps Deps) {
	admin.DELETE("/documents", DeleteHandler(deps))
}

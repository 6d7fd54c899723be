package jobs

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup, reader JobReader) {
	router.GET("/jobs/:id", GetJobHandler(reader))
}

// RegisterAdminRoutes expects admin to already carry the auth middleware
func RegisterAdminRoutes(admin *gin.RouterGroup, sweeper Sweeper, crawls CrawlCleaner) {
	admin.POST("/sweep", SweepHandler(sweeper, crawls))
}

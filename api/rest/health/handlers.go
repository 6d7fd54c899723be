package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "crawlsearch"
	version     = "1.0.0"
)

// Handler godoc
// @Summary Health check
// @Description Always answers 200; status is "degraded" when a dependency is down
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func Handler(checker Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps := checker.Health(c.Request.Context())

		status := "healthy"
		for _, s := range deps {
			if s == "unavailable" {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, Response{
			Status:       status,
			Service:      serviceName,
			Version:      version,
			Dependencies: deps,
		})
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}

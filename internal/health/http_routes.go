package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 挂载 /health、/health/ready、/health/live
func RegisterHTTPRoutes(r gin.IRouter, agg *Aggregator) {
	g := r.Group("/health")
	g.GET("", func(c *gin.Context) {
		rep := agg.Report(c.Request.Context())
		c.JSON(statusCode(rep.Status != StatusUnhealthy), rep)
	})
	g.GET("/ready", func(c *gin.Context) {
		ok := agg.Ready(c.Request.Context())
		st := StatusUnhealthy
		if ok {
			st = StatusHealthy
		}
		c.JSON(statusCode(ok), gin.H{"status": st, "ready": ok})
	})
	g.GET("/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true})
	})
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/insights/metrics"
)

// RequestMetrics counts every served request by status code.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.IncHTTPRequest(c.Writer.Status())
	}
}

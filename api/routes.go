package api

import (
	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/insights/metrics"
)

// RegisterRoutes mounts every endpoint on r.
func RegisterRoutes(r gin.IRouter, h *Handler) {
	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/analyze", h.analyze)

		api.GET("/clients", h.listClients)
		api.POST("/clients", h.importClients)
		api.POST("/clients/analyze", h.analyzeClients)
		api.GET("/clients/:id", h.getClient)

		api.PUT("/credentials/:provider", h.saveCredential)

		api.DELETE("/cache", h.clearCache)
		api.GET("/statistics", h.statistics)
	}
	r.GET("/metrics", metrics.Handler())
}

package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts every handler on router. apiMiddleware runs on the
// /api group only. The chaos admin API is reachable under both /chaos and
// /api/chaos.
func (h *Handlers) RegisterRoutes(router gin.IRouter, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", h.Metrics)

	h.registerChaos(router.Group("/chaos"))

	api := router.Group("/api", apiMiddleware...)
	h.registerChaos(api.Group("/chaos"))
	api.GET("/slo", h.SLOs)

	users := api.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
	}
}

func (h *Handlers) registerChaos(group *gin.RouterGroup) {
	group.POST("/enable", h.EnableChaos)
	group.POST("/disable", h.DisableChaos)
	group.POST("/latency/:ms", h.SetChaosLatency)
	group.POST("/errors/:rate", h.SetChaosErrorRate)
	group.GET("/status", h.ChaosStatus)
	group.GET("/stats", h.ChaosStats)
}

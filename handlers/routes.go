package handlers

import "github.com/labstack/echo/v4"

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.GetHealth)
	e.GET("/cache/status", h.GetCacheStatus)

	api := e.Group("/api")
	api.GET("/status", h.GetStatus)
	api.POST("/collect", h.Collect)
	api.GET("/stats", h.ListStats)
	api.GET("/stats/:network", h.GetStats)
	api.GET("/history/:network", h.GetHistory)
}

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"autostats/services"
)

// GetCacheStatus returns cache health and statistics. The in-memory fallback
// only counts as healthy when Redis was never configured.
func (h *Handler) GetCacheStatus(c echo.Context) error {
	stats := h.Cache.GetCacheStats()
	mode := h.Cache.GetCacheMode()

	response := map[string]interface{}{
		"mode":    string(mode),
		"healthy": mode == services.CacheModeRedis || !h.Cfg.Redis.Enabled,
		"stats":   stats,
	}

	return c.JSON(http.StatusOK, response)
}

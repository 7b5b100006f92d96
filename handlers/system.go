package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"autostats/models"
)

type StatusResponse struct {
	Status    string                 `json:"status"`
	Uptime    string                 `json:"uptime"`
	Networks  []string               `json:"networks"`
	Cache     map[string]interface{} `json:"cache"`
	LastRun   *models.RunResult      `json:"lastRun"`
	NextRun   *time.Time             `json:"nextRun,omitempty"`
	Mirrored  map[string]int64       `json:"mirroredRows,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// GetHealth returns OK
func (h *Handler) GetHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// GetStatus returns the last run, the next scheduled run and the cache backend
func (h *Handler) GetStatus(c echo.Context) error {
	networks := make([]string, 0, len(h.Cfg.Networks))
	for _, n := range h.Cfg.Networks {
		networks = append(networks, n.ID)
	}

	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Networks:  networks,
		Cache:     h.Cache.GetCacheStats(),
		Timestamp: time.Now(),
	}
	if last, found := h.Cache.GetLastRun(); found {
		resp.LastRun = last
	}
	if h.NextRun != nil {
		if next := h.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	if h.historyEnabled() {
		counts, err := h.History.CountRows(c.Request().Context())
		if err != nil {
			log.Warn().Err(err).Msg("Error counting mirrored rows")
		} else {
			resp.Mirrored = counts
		}
	}
	return c.JSON(http.StatusOK, resp)
}

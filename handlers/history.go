package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"autostats/models"
)

const maxHistoryHours = 24 * 365

// GetHistory godoc
// @Summary Mirrored rows for a network
// @Tags history
// @Produce json
// @Param network path string true "network id"
// @Param hours query int false "look-back window in hours (default 24)"
// @Success 200 {array} models.RowRecord
// @Failure 503 {object} ErrorResponse
// @Router /api/history/{network} [get]
func (h *Handler) GetHistory(c echo.Context) error {
	network := c.Param("network")
	if _, ok := h.Cfg.Network(network); !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown network " + network})
	}

	hours := 24 // Default 24 hours
	if hoursStr := c.QueryParam("hours"); hoursStr != "" {
		if v, err := strconv.Atoi(hoursStr); err == nil && v > 0 {
			hours = min(v, maxHistoryHours)
		}
	}

	if !h.historyEnabled() {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history storage is not enabled"})
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)

	rows, err := h.History.GetRowsRange(c.Request().Context(), network, start, end)
	if err != nil {
		log.Error().Err(err).Str("network", network).Msg("Error fetching row history")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read history"})
	}
	if rows == nil {
		rows = []models.RowRecord{}
	}
	return c.JSON(http.StatusOK, rows)
}

package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"autostats/models"
)

// GetStats godoc
// @Summary Latest collected snapshot for a network
// @Tags stats
// @Produce json
// @Param network path string true "network id"
// @Success 200 {object} models.Snapshot
// @Failure 404 {object} ErrorResponse
// @Router /api/stats/{network} [get]
func (h *Handler) GetStats(c echo.Context) error {
	network := c.Param("network")
	if _, ok := h.Cfg.Network(network); !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown network " + network})
	}

	snap, found := h.Cache.GetLatestSnapshot(network)
	if !found {
		snap = h.latestMirrored(c.Request().Context(), network)
	}
	if snap == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no snapshot collected yet"})
	}

	c.Response().Header().Set("Cache-Control", "max-age=60")
	return c.JSON(http.StatusOK, snap)
}

// latestMirrored falls back to the row mirror when the cache has nothing,
// e.g. after a restart on the in-memory cache.
func (h *Handler) latestMirrored(ctx context.Context, network string) *models.Snapshot {
	if !h.historyEnabled() {
		return nil
	}
	row, err := h.History.GetLatestRow(ctx, network)
	if err != nil {
		log.Warn().Err(err).Str("network", network).Msg("Error reading latest mirrored row")
		return nil
	}
	if row == nil {
		return nil
	}
	snap := row.Snapshot()
	h.Cache.SetLatestSnapshot(snap)
	return snap
}

// ListStats returns the latest snapshot of every network that has one.
func (h *Handler) ListStats(c echo.Context) error {
	snapshots := make(map[string]*models.Snapshot, len(h.Cfg.Networks))
	for _, n := range h.Cfg.Networks {
		snap, found := h.Cache.GetLatestSnapshot(n.ID)
		if !found {
			snap = h.latestMirrored(c.Request().Context(), n.ID)
		}
		if snap != nil {
			snapshots[n.ID] = snap
		}
	}
	return c.JSON(http.StatusOK, snapshots)
}

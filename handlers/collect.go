package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"autostats/services"
)

// CollectRequest is the scheduled-function payload. next_run is only echoed back.
type CollectRequest struct {
	NextRun json.RawMessage `json:"next_run"`
}

type CollectResponse struct {
	Message string          `json:"message"`
	NextRun json.RawMessage `json:"nextRun"`
}

// Collect godoc
// @Summary Run one collection
// @Description Appends a row per stale network. Blocks until the run finishes.
// @Tags collector
// @Accept json
// @Produce json
// @Success 200 {object} CollectResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/collect [post]
func (h *Handler) Collect(c echo.Context) error {
	var req CollectRequest
	// an empty or malformed body still triggers a run
	if err := c.Bind(&req); err != nil {
		log.Debug().Err(err).Msg("Ignoring unreadable collect body")
	}
	if len(req.NextRun) == 0 {
		req.NextRun = json.RawMessage("null")
	}
	log.Info().RawJSON("next_run", req.NextRun).Msg("Function invoked")

	// a dropped client must not abort a run halfway through its appends
	result, err := h.Collector.Run(context.WithoutCancel(c.Request().Context()))
	if errors.Is(err, services.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, CollectResponse{
		Message: result.Message,
		NextRun: req.NextRun,
	})
}

package handlers

import (
	"context"
	"time"

	"autostats/config"
	"autostats/models"
	"autostats/services"
)

// RowHistory is the read side of the row mirror.
type RowHistory interface {
	Enabled() bool
	GetRowsRange(ctx context.Context, network string, start, end time.Time) ([]models.RowRecord, error)
	GetLatestRow(ctx context.Context, network string) (*models.RowRecord, error)
	CountRows(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	Cfg       *config.Config
	Cache     *services.CacheService
	Collector services.Runner
	History   RowHistory

	// NextRun reports the scheduler's next trigger; nil when no scheduler runs.
	NextRun func() time.Time

	startedAt time.Time
}

func NewHandler(cfg *config.Config, cache *services.CacheService, collector services.Runner, history RowHistory) *Handler {
	return &Handler{
		Cfg:       cfg,
		Cache:     cache,
		Collector: collector,
		History:   history,
		startedAt: time.Now(),
	}
}

func (h *Handler) historyEnabled() bool {
	return h.History != nil && h.History.Enabled()
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"autostats/config"
	"autostats/models"
)

// Scraper drives one dashboard page per network and extracts its stats.
type Scraper struct {
	extractor *Extractor
}

func NewScraper(extractor *Extractor) *Scraper {
	return &Scraper{extractor: extractor}
}

// ScrapeStats loads the network's dashboard in a new page of browser. Navigation
// and the Stats tab must succeed; missing stat cells are tolerated.
func (s *Scraper) ScrapeStats(ctx context.Context, browser Browser, network config.NetworkConfig) (models.NetworkStats, error) {
	logger := log.With().Str("network", network.ID).Logger()
	logger.Info().Str("url", network.TelemetryURL).Msg("Scraping telemetry dashboard")

	page, err := browser.NewPage(ctx)
	if err != nil {
		return models.NetworkStats{}, err
	}
	defer page.Close()

	if err := page.Load(ctx, network.TelemetryURL); err != nil {
		return models.NetworkStats{}, fmt.Errorf("%s: %w", network.ID, err)
	}
	if err := page.OpenStatsTab(ctx); err != nil {
		return models.NetworkStats{}, fmt.Errorf("%s: %w", network.ID, err)
	}
	if err := page.Settle(ctx); err != nil {
		return models.NetworkStats{}, fmt.Errorf("%s: %w", network.ID, err)
	}

	body, err := page.HTML(ctx)
	if err != nil {
		return models.NetworkStats{}, fmt.Errorf("%s: %w", network.ID, err)
	}

	stats, err := s.extractor.Extract(body)
	if err != nil {
		return models.NetworkStats{}, fmt.Errorf("%s: %w", network.ID, err)
	}

	missing := missingFields(stats)
	if len(missing) > 0 {
		logger.Warn().Strs("fields", missing).Msg("Some stats were not found on the page")
	}
	logger.Debug().Msg("Stats scraped from telemetry page")

	return stats, nil
}

func missingFields(stats models.NetworkStats) []string {
	var missing []string
	fields := []struct {
		name  string
		value *string
	}{
		{"nodeCount", stats.NodeCount},
		{"subspaceNodeCount", stats.SubspaceNodeCount},
		{"spaceAcresNodeCount", stats.SpaceAcresNodeCount},
		{"linuxNodeCount", stats.LinuxNodeCount},
		{"windowsNodeCount", stats.WindowsNodeCount},
		{"macosNodeCount", stats.MacOSNodeCount},
	}
	for _, f := range fields {
		if f.value == nil {
			missing = append(missing, f.name)
		}
	}
	return missing
}

package services

import (
	"math/big"
	"time"

	"autostats/models"
)

const (
	BaseRowLen    = 8
	MainnetRowLen = 11
)

// FormatTimestamp renders t like Date.prototype.toISOString.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// BuildRow assembles a sheet row. metrics must be nil for every network except mainnet.
func BuildRow(ts time.Time, stats models.NetworkStats, spacePledged *big.Int, metrics *models.DerivedMetrics) models.Row {
	pledged := ""
	if spacePledged != nil {
		pledged = spacePledged.String()
	}

	row := make(models.Row, 0, MainnetRowLen)
	row = append(row,
		FormatTimestamp(ts),
		orEmpty(stats.NodeCount),
		pledged,
		orEmpty(stats.SubspaceNodeCount),
		orEmpty(stats.SpaceAcresNodeCount),
		orEmpty(stats.LinuxNodeCount),
		orEmpty(stats.WindowsNodeCount),
		orEmpty(stats.MacOSNodeCount),
	)

	if metrics != nil {
		row = append(row, metrics.SpacePledgedPiB, metrics.SpacePledgedPB, metrics.FeePerGB)
	}
	return row
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

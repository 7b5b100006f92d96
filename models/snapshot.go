package models

import (
	"math/big"
	"time"
)

// Row is one spreadsheet row. Column order is fixed by the sheet layout:
// timestamp, nodeCount, spacePledged, subspace, spaceAcres, linux, windows, macos
// and, for mainnet only, PiB, PB, feePerGB.
type Row []string

// Snapshot is the result of collecting one network in one run.
type Snapshot struct {
	Network      string          `json:"network"`
	Sheet        string          `json:"sheet"`
	Timestamp    time.Time       `json:"timestamp"`
	Stats        NetworkStats    `json:"stats"`
	SpacePledged *big.Int        `json:"space_pledged"`
	Metrics      *DerivedMetrics `json:"metrics,omitempty"`
	Row          Row             `json:"row"`
}

// FreshnessDecision records whether a network's sheet is due for a new row.
type FreshnessDecision struct {
	Network       string     `json:"network"`
	Sheet         string     `json:"sheet"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
	ShouldUpdate  bool       `json:"should_update"`
}

type RunStatus string

const (
	RunSkipped RunStatus = "skipped"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunResult summarises one collector invocation.
type RunResult struct {
	Status    RunStatus `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Networks  []string  `json:"networks"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
}

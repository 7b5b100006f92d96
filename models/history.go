package models

import (
	"math/big"
	"time"
)

// RowRecord is the MongoDB mirror of an appended sheet row
type RowRecord struct {
	Sheet        string          `json:"sheet" bson:"sheet"`
	Network      string          `json:"network" bson:"network"`
	Timestamp    time.Time       `json:"timestamp" bson:"timestamp"`
	Stats        NetworkStats    `json:"stats" bson:"stats"`
	SpacePledged string          `json:"space_pledged" bson:"space_pledged"`
	Metrics      *DerivedMetrics `json:"metrics,omitempty" bson:"metrics,omitempty"`
	Row          []string        `json:"row" bson:"row"`
	InsertedAt   time.Time       `json:"inserted_at" bson:"inserted_at"`
}

// NewRowRecord flattens a snapshot into its stored form
func NewRowRecord(snap *Snapshot) RowRecord {
	rec := RowRecord{
		Sheet:      snap.Sheet,
		Network:    snap.Network,
		Timestamp:  snap.Timestamp,
		Stats:      snap.Stats,
		Metrics:    snap.Metrics,
		Row:        []string(snap.Row),
		InsertedAt: time.Now().UTC(),
	}
	if snap.SpacePledged != nil {
		rec.SpacePledged = snap.SpacePledged.String()
	}
	return rec
}

// Snapshot rebuilds the collected snapshot a record was mirrored from
func (r RowRecord) Snapshot() *Snapshot {
	snap := &Snapshot{
		Network:   r.Network,
		Sheet:     r.Sheet,
		Timestamp: r.Timestamp,
		Stats:     r.Stats,
		Metrics:   r.Metrics,
		Row:       Row(r.Row),
	}
	if v, ok := new(big.Int).SetString(r.SpacePledged, 10); ok {
		snap.SpacePledged = v
	}
	return snap
}

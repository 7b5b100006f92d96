package models

import "math/big"

// NetworkStats holds the node counts read off the telemetry dashboard's Stats tab.
// A nil field means none of the field's locators matched.
type NetworkStats struct {
	NodeCount           *string `json:"node_count" bson:"node_count"`
	SubspaceNodeCount   *string `json:"subspace_node_count" bson:"subspace_node_count"`
	SpaceAcresNodeCount *string `json:"space_acres_node_count" bson:"space_acres_node_count"`
	LinuxNodeCount      *string `json:"linux_node_count" bson:"linux_node_count"`
	WindowsNodeCount    *string `json:"windows_node_count" bson:"windows_node_count"`
	MacOSNodeCount      *string `json:"macos_node_count" bson:"macos_node_count"`
}

// DerivedMetrics are only computed for mainnet.
type DerivedMetrics struct {
	SpacePledgedPiB string   `json:"space_pledged_pib" bson:"space_pledged_pib"`
	SpacePledgedPB  string   `json:"space_pledged_pb" bson:"space_pledged_pb"`
	FeePerGB        string   `json:"fee_per_gb" bson:"fee_per_gb"`
	CurrentByteFee  *big.Int `json:"current_byte_fee" bson:"-"`
}

package services

import (
	"fmt"
	"math"
	"math/big"

	"autostats/models"
	"autostats/utils"
)

var (
	bytesPerPiB = math.Pow(2, 50)
	bytesPerPB  = math.Pow(1000, 5)
)

// ComputeDerivedMetrics converts pledged bytes and the per-byte fee into the three
// mainnet columns. Both inputs go through float64 first so the output matches the
// values already recorded in the sheet.
func ComputeDerivedMetrics(spacePledged, byteFee *big.Int) (*models.DerivedMetrics, error) {
	if spacePledged == nil || byteFee == nil {
		return nil, fmt.Errorf("%w: missing pledged space or byte fee", ErrInvalidMetricInput)
	}
	if spacePledged.Sign() < 0 || byteFee.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative input (pledged=%s fee=%s)", ErrInvalidMetricInput, spacePledged, byteFee)
	}

	bytes := toFloat(spacePledged)
	fee := toFloat(byteFee)

	piB := bytes / bytesPerPiB
	pb := bytes / bytesPerPB
	// fee per byte -> fee per GB in whole tokens (18 decimals)
	feePerGB := fee * math.Pow(10, 9) / 1e18

	for name, v := range map[string]float64{"PiB": piB, "PB": pb, "feePerGB": feePerGB} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is %v", ErrInvalidMetricInput, name, v)
		}
	}

	return &models.DerivedMetrics{
		SpacePledgedPiB: utils.ToFixed(piB, 2),
		SpacePledgedPB:  utils.ToFixed(pb, 2),
		FeePerGB:        utils.ToFixed(feePerGB, 2),
		CurrentByteFee:  new(big.Int).Set(byteFee),
	}, nil
}

// toFloat rounds to the nearest float64, ties to even.
func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

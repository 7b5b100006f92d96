package utils

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ToFixed formats x with the given number of fraction digits the way
// Number.prototype.toFixed does: the exact binary value of x is rounded half
// away from zero, so 1.005 becomes "1.00" and 0.125 becomes "0.13".
func ToFixed(x float64, digits int32) string {
	if math.Abs(x) >= 1e21 {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	// 'f' with 1074 digits is the full decimal expansion of any float64
	exact, err := decimal.NewFromString(strconv.FormatFloat(x, 'f', 1074, 64))
	if err != nil {
		return strconv.FormatFloat(x, 'f', int(digits), 64)
	}
	return exact.StringFixed(digits)
}

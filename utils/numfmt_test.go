package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFixed(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"integer", 1024, "1024.00"},
		{"pads zeros", 1.5, "1.50"},
		{"exact tie rounds away from zero", 0.125, "0.13"},
		{"binary value below the tie", 1.005, "1.00"},
		{"binary value above the tie", 8.345, "8.35"},
		{"zero", 0, "0.00"},
		{"large", 1e9, "1000000000.00"},
		{"pb of 2^60", math.Pow(2, 60) / math.Pow(1000, 5), "1152.92"},
		{"exponent form past 1e21", 1e21, "1e+21"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToFixed(tt.in, 2))
		})
	}
}

// utils/math.go
package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

const Epsilon = 1e-9

// FloatEquals compares two floating-point numbers for near-equality.
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Round8 rounds a price to 8 decimal places. Applying it to an
// already-rounded value returns the value unchanged.
func Round8(value float64) float64 {
	f, _ := decimal.NewFromFloat(value).Round(8).Float64()
	return f
}

// RoundToPrecision rounds a float64 to a specified number of decimal places.
func RoundToPrecision(value float64, precision int) float64 {
	f, _ := decimal.NewFromFloat(value).Round(int32(precision)).Float64()
	return f
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStdDev returns the sample standard deviation (ddof=1) of values.
// Fewer than two values yields 0.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

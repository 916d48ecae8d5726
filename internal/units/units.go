// Package units provides shared constants and conversions for backscatter scales
package units

import (
	"fmt"
	"math"
)

// Scale constants
const (
	Linear = "linear"
	DB     = "db"
)

// ValidScales contains all valid scale values
var ValidScales = []string{Linear, DB}

// linearFloor keeps LinearToDB finite for zero or negative input
const linearFloor = 1e-10

// IsValid checks if the given scale is in the list of valid scales
func IsValid(scale string) bool {
	for _, validScale := range ValidScales {
		if scale == validScale {
			return true
		}
	}
	return false
}

// GetValidScalesString returns a comma-separated string of valid scales for error messages
func GetValidScalesString() string {
	return "linear, db"
}

// LinearToDB converts linear backscatter intensity to decibels.
// Values at or below 1e-10 are clamped to -100 dB.
func LinearToDB(v float64) float64 {
	return 10 * math.Log10(math.Max(v, linearFloor))
}

// DBToLinear converts decibels to linear backscatter intensity
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// ToLinear converts a value on the given scale to linear intensity.
// An empty scale is treated as linear.
func ToLinear(v float64, scale string) (float64, error) {
	switch scale {
	case Linear, "":
		return v, nil
	case DB:
		return DBToLinear(v), nil
	default:
		return v, fmt.Errorf("unknown scale %q (valid: %s)", scale, GetValidScalesString())
	}
}

package geom

import (
	"math"
)

// Wrap maps x into [min, max) assuming the axis is periodic with period
// max - min. Wrapping is idempotent and maps max onto min.
func Wrap(x, min, max float64) float64 {
	width := max - min
	d := math.Mod(x-min, width)
	if d < 0 {
		d += width
	}
	// d can round up to width for tiny negative inputs.
	if d >= width {
		d = 0
	}
	return min + d
}

// Clamp maps x into [min, max].
func Clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

package advect

import (
	"math"
	"strings"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
)

// Flow is an analytic velocity field. It can be sampled onto a mesh with
// SampleField.
type Flow func(p geom.Vec) geom.Vec

// Cells is a single divergence-free convection cell filling the x-z extent of
// the box [lo, hi]. The normal velocity vanishes on every face of the box.
func Cells(speed float64, lo, hi geom.Vec) Flow {
	lx, lz := hi[0]-lo[0], hi[2]-lo[2]
	return func(p geom.Vec) geom.Vec {
		x := math.Pi * (p[0] - lo[0]) / lx
		z := math.Pi * (p[2] - lo[2]) / lz
		return geom.Vec{
			speed * math.Sin(x) * math.Cos(z),
			0,
			-speed * (lz / lx) * math.Cos(x) * math.Sin(z),
		}
	}
}

// Shear moves material along x with a speed that grows linearly from zero at
// the bottom of the box to speed at the top.
func Shear(speed float64, lo, hi geom.Vec) Flow {
	return func(p geom.Vec) geom.Vec {
		return geom.Vec{speed * (p[2] - lo[2]) / (hi[2] - lo[2]), 0, 0}
	}
}

// NewFlow returns the named analytic flow over the box [lo, hi].
func NewFlow(name string, speed float64, lo, hi geom.Vec) (Flow, error) {
	switch strings.ToLower(name) {
	case "cells":
		return Cells(speed, lo, hi), nil
	case "shear":
		return Shear(speed, lo, hi), nil
	}
	return nil, fault.Configf("Flow '%s' is not recognized.", name)
}

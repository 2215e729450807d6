package geom

import (
	"math"
)

// Vec is a point or displacement in the coordinate system of a mesh. For
// Cartesian meshes the components are (x, y, z) and for spherical meshes
// they are (colatitude, longitude, radius).
type Vec [3]float64

// Add returns v + u.
func (v Vec) Add(u Vec) Vec {
	return Vec{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Sub returns v - u.
func (v Vec) Sub(u Vec) Vec {
	return Vec{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// Scale returns k * v.
func (v Vec) Scale(k float64) Vec {
	return Vec{v[0] * k, v[1] * k, v[2] * k}
}

// Dot returns the dot product of v and u.
func (v Vec) Dot(u Vec) float64 {
	return v[0]*u[0] + v[1]*u[1] + v[2]*u[2]
}

// Norm returns the Euclidean length of v.
func (v Vec) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Cartesian converts a spherical (colatitude, longitude, radius) position
// into Cartesian coordinates.
func (v Vec) Cartesian() Vec {
	st, ct := math.Sincos(v[0])
	sp, cp := math.Sincos(v[1])
	return Vec{v[2] * st * cp, v[2] * st * sp, v[2] * ct}
}

// Spherical is the inverse of Cartesian. The longitude is returned in
// [0, 2 pi).
func (v Vec) Spherical() Vec {
	r := v.Norm()
	if r == 0 {
		return Vec{}
	}
	theta := math.Acos(v[2] / r)
	phi := math.Atan2(v[1], v[0])
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return Vec{theta, phi, r}
}

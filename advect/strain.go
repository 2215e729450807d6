package advect

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
)

// Gradient returns the velocity gradient L[i][j] = dv_i/dx_j at p. Spherical
// derivatives are converted to physical lengths with the local scale
// factors.
func (in *Integrator) Gradient(v VelocityField, p geom.Vec) (*mat.Dense, error) {
	el, dx, err := in.loc.Element(p)
	if err != nil {
		return nil, err
	}
	m := in.loc.Mesh()
	h := m.ElemSize(el)
	vol := h[0] * h[1] * h[2]

	L := mat.NewDense(3, 3, nil)
	for a, n := range m.ElemNodes(el) {
		dN := shapeDerivs(mesh.Corner(a), h, dx, vol)
		u := v.At(n)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				L.Set(i, j, L.At(i, j)+u[i]*dN[j])
			}
		}
	}

	if m.System == mesh.Spherical {
		r, theta := p[2], p[0]
		scale := [3]float64{1 / r, 1 / (r * math.Sin(theta)), 1}
		for j := 0; j < 3; j++ {
			for i := 0; i < 3; i++ {
				L.Set(i, j, L.At(i, j)*scale[j])
			}
		}
	}
	return L, nil
}

// shapeDerivs returns the spatial derivatives of the trilinear shape
// function of one element corner.
func shapeDerivs(c [3]int, h, dx geom.Vec, vol float64) [3]float64 {
	var f, sign [3]float64
	for k := 0; k < 3; k++ {
		if c[k] == 1 {
			f[k], sign[k] = dx[k], 1
		} else {
			f[k], sign[k] = h[k]-dx[k], -1
		}
	}
	return [3]float64{
		sign[0] * f[1] * f[2] / vol,
		sign[1] * f[0] * f[2] / vol,
		sign[2] * f[0] * f[1] / vol,
	}
}

// evolveStrain advances the strain history of mk with the velocity gradient
// at its predicted position. The scalar strain is the accumulated
// strain-rate invariant or, when the deformation gradient F is tracked, the
// log ratio of F's largest and smallest principal stretches.
func (in *Integrator) evolveStrain(v VelocityField, mk *marker.Marker, dt float64) {
	L, err := in.Gradient(v, mk.Pred)
	if err != nil {
		// Interpolate already succeeded at this position.
		return
	}

	if !in.layout.Tensor() {
		var E mat.Dense
		E.Add(L, L.T())
		E.Scale(0.5, &E)
		mk.Strain[0] += dt * mat.Norm(&E, 2) / math.Sqrt2
		return
	}

	F := mat.NewDense(3, 3, mk.Strain[1:marker.StrainCols])
	G := mat.NewDense(3, 3, nil)
	G.Scale(dt, L)
	for i := 0; i < 3; i++ {
		G.Set(i, i, G.At(i, i)+1)
	}
	var next mat.Dense
	next.Mul(G, F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			mk.Strain[1+3*i+j] = next.At(i, j)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(&next, mat.SVDNone) {
		return
	}
	s := svd.Values(nil)
	if s[2] > 0 {
		mk.Strain[0] = math.Log(s[0] / s[2])
	}
}

/*package advect moves markers through a nodal velocity field with a two
stage predictor-corrector scheme.
*/
package advect

import (
	"math"

	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
)

// VelocityField is a velocity defined at every local mesh node.
type VelocityField interface {
	At(node int) geom.Vec
}

// NodalField is a VelocityField stored as one slice per component.
type NodalField [3][]float64

// At returns the velocity at a node.
func (f NodalField) At(node int) geom.Vec {
	return geom.Vec{f[0][node], f[1][node], f[2][node]}
}

// SampleField evaluates fn at every node of m.
func SampleField(m *mesh.Mesh, fn func(p geom.Vec) geom.Vec) NodalField {
	var f NodalField
	for k := range f {
		f[k] = make([]float64, m.Nodes())
	}
	for n := 0; n < m.Nodes(); n++ {
		v := fn(m.NodePos(n))
		f[0][n], f[1][n], f[2][n] = v[0], v[1], v[2]
	}
	return f
}

// Integrator advances the markers of one process.
type Integrator struct {
	loc    *locate.Localizer
	layout marker.Layout
}

// New returns an Integrator for the local mesh of loc.
func New(loc *locate.Localizer, layout marker.Layout) *Integrator {
	return &Integrator{loc: loc, layout: layout}
}

// Interpolate returns the velocity at p and the element containing it.
func (in *Integrator) Interpolate(v VelocityField, p geom.Vec) (geom.Vec, int, error) {
	el, dx, err := in.loc.Element(p)
	if err != nil {
		return geom.Vec{}, -1, err
	}
	m := in.loc.Mesh()
	w := locate.Weights(m.ElemSize(el), dx)

	var u geom.Vec
	for i, n := range m.ElemNodes(el) {
		u = u.Add(v.At(n).Scale(w[i]))
	}
	return u, el, nil
}

// Predict is the Euler stage: every marker's velocity is sampled at its
// current position and its predicted position is moved a full step along it.
func (in *Integrator) Predict(v VelocityField, set *marker.Set, dt float64) error {
	ms := set.Markers()
	for i := range ms {
		mk := &ms[i]
		u, el, err := in.Interpolate(v, mk.Pos)
		if err != nil {
			return err
		}
		mk.Vel, mk.Elem = u, el
		mk.Pred = in.step(mk.Pos, u, dt)
	}
	return nil
}

// Correct is the trapezoidal stage: every marker's velocity is sampled at its
// predicted position and the marker moves along the mean of the two
// velocities. Strain is evolved when the layout tracks it.
func (in *Integrator) Correct(v VelocityField, set *marker.Set, dt float64) error {
	ms := set.Markers()
	for i := range ms {
		mk := &ms[i]
		u, el, err := in.Interpolate(v, mk.Pred)
		if err != nil {
			return err
		}
		mk.VelPred, mk.Elem = u, el
		mk.Pos = in.step(mk.Pos, mk.Vel.Add(u).Scale(0.5), dt)

		if in.layout.Strain > 0 {
			in.evolveStrain(v, mk, dt)
		}
	}
	return nil
}

// step moves p along u for a time dt. Angular rates in spherical meshes are
// converted from the physical velocity using the radius and colatitude at p.
func (in *Integrator) step(p, u geom.Vec, dt float64) geom.Vec {
	if in.loc.Mesh().System == mesh.Spherical {
		r, theta := p[2], p[0]
		u[0] /= r
		u[1] /= r * math.Sin(theta)
	}
	return p.Add(u.Scale(dt))
}

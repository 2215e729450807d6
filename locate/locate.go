/*package locate maps positions onto the elements and processes which own
them.
*/
package locate

import (
	"math"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

// Localizer finds elements within the local mesh and owners within the
// global decomposition.
type Localizer struct {
	m    *mesh.Mesh
	d    *topology.Decomposition
	rank int
	me   [3]int
	tab  *axisTable
}

// New creates a Localizer for the mesh owned by rank.
func New(m *mesh.Mesh, d *topology.Decomposition, rank int) *Localizer {
	return &Localizer{
		m: m, d: d, rank: rank, me: d.Coords(rank),
		tab: newAxisTable(m.Axes[2]),
	}
}

// Mesh returns the local mesh.
func (loc *Localizer) Mesh() *mesh.Mesh { return loc.m }

// Rank returns the local rank.
func (loc *Localizer) Rank() int { return loc.rank }

// Element returns the local element containing p and the offset of p from
// the element's lower corner. p must lie within the local subdomain
// horizontally; horizontal indices are clamped to the edge elements. A
// vertical coordinate outside the local mesh is a DomainOverflowError.
func (loc *Localizer) Element(p geom.Vec) (int, geom.Vec, error) {
	m := loc.m
	var idx [3]int
	for i := 0; i < 2; i++ {
		n := len(m.Axes[i]) - 1
		idx[i] = int((p[i] - m.Axes[i][0]) / m.Spacing[i])
		if idx[i] >= n {
			idx[i] = n - 1
		} else if idx[i] < 0 {
			idx[i] = 0
		}
	}

	iz, ok := loc.tab.elem(p[2])
	if !ok {
		return -1, geom.Vec{}, fault.Overflowf(
			loc.rank, "vertical coordinate %g of %v is outside [%g, %g].",
			p[2], p, m.Axes[2][0], m.Axes[2][len(m.Axes[2])-1],
		)
	}
	idx[2] = iz

	el := m.Elem(idx[0], idx[1], idx[2])
	return el, p.Sub(m.ElemOrigin(el)), nil
}

// LocateOwner returns the rank whose subdomain p nominally belongs to.
// Positions outside the global domain resolve to the edge processes.
func (loc *Localizer) LocateOwner(p geom.Vec) int {
	lo, hi := loc.m.Lo(), loc.m.Hi()
	c := loc.me

	for i := 0; i < 3; i++ {
		if p[i] >= lo[i] && p[i] <= hi[i] {
			continue
		}
		np := loc.d.Procs[i]
		if i < 2 {
			// Horizontal axes are split into equal widths.
			g := loc.m.Global[i]
			c[i] = int(math.Floor((p[i] - g[0]) / (g[1] - g[0]) * float64(np)))
		} else if p[i] > hi[i] {
			c[i]++
		} else {
			c[i]--
		}
		if c[i] < 0 {
			c[i] = 0
		} else if c[i] >= np {
			c[i] = np - 1
		}
	}
	return loc.d.Rank(c)
}

// Weights returns the trilinear interpolation weights of the corners of an
// element (ordered as mesh.ElemNodes) at offset dx from its lower corner.
func Weights(size, dx geom.Vec) [8]float64 {
	var w [8]float64
	vol := size[0] * size[1] * size[2]
	for i := range w {
		c := mesh.Corner(i)
		w[i] = 1 / vol
		for k := 0; k < 3; k++ {
			if c[k] == 1 {
				w[i] *= dx[k]
			} else {
				w[i] *= size[k] - dx[k]
			}
		}
	}
	return w
}

/*package mesh describes the part of a structured finite element mesh owned by
one process.

The mesh is uniform along the first two (horizontal) axes and arbitrarily
stretched along the third (vertical or radial) axis. Nodes and elements are
numbered with the vertical axis varying fastest.
*/
package mesh

import (
	"fmt"
	"math"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/topology"
)

// System is the coordinate system a mesh is written in.
type System int

const (
	Cartesian System = iota
	Spherical
)

func (sys System) String() string {
	switch sys {
	case Cartesian:
		return "Cartesian"
	case Spherical:
		return "Spherical"
	}
	return fmt.Sprintf("System(%d)", int(sys))
}

// uniformTol is the relative tolerance for horizontal spacing checks.
const uniformTol = 1e-8

// Mesh is the local part of a global structured mesh.
type Mesh struct {
	System   System
	Periodic [3]bool

	// Axes holds the local node coordinates along each axis.
	Axes [3][]float64
	// Global holds the global extent of each axis.
	Global [3][2]float64
	// Spacing holds the element width along the uniform horizontal axes.
	Spacing [2]float64

	// NodeGrid and ElemGrid have their origins at the global index of the
	// first local node and element, so Idx accepts global indices and returns
	// local ones.
	NodeGrid, ElemGrid geom.Grid

	boundary []bool
}

// New creates the mesh owned by rank from the global node coordinates of
// each axis.
func New(
	sys System, axes [3][]float64, d *topology.Decomposition, rank int,
) (*Mesh, error) {
	m := &Mesh{System: sys, Periodic: d.Periodic}

	for i := 0; i < 3; i++ {
		if err := checkAxis(axes[i], i, d.Elements[i]); err != nil {
			return nil, err
		}
		m.Global[i] = [2]float64{axes[i][0], axes[i][len(axes[i])-1]}
	}
	for i := 0; i < 2; i++ {
		h, err := uniformSpacing(axes[i], i)
		if err != nil {
			return nil, err
		}
		m.Spacing[i] = h
	}
	if sys == Spherical {
		if m.Global[0][0] < 0 || m.Global[0][1] > math.Pi {
			return nil, fault.Configf(
				"colatitude range %v is outside [0, pi].", m.Global[0],
			)
		} else if m.Global[2][0] <= 0 {
			return nil, fault.Configf(
				"minimum radius %g must be positive.", m.Global[2][0],
			)
		}
	}

	nb := d.NodeBounds(rank)
	elemWidth := d.LocalElements()
	for i := 0; i < 3; i++ {
		lo := nb.Origin[i]
		m.Axes[i] = append([]float64{}, axes[i][lo:lo+nb.Width[i]]...)
	}
	m.NodeGrid.Init(nb.Origin, nb.Width)
	m.ElemGrid.Init(d.ElementOffset(rank), elemWidth)

	m.boundary = make([]bool, m.ElemGrid.Volume)
	for el := range m.boundary {
		c := m.ElemCoords(el)
		for i := 0; i < 3; i++ {
			if c[i] == 0 || c[i] == elemWidth[i]-1 {
				m.boundary[el] = true
			}
		}
	}

	return m, nil
}

func checkAxis(xs []float64, axis, elems int) error {
	if len(xs) != elems+1 {
		return fault.Configf(
			"axis %d has %d nodes, but %d elements were requested.",
			axis, len(xs), elems,
		)
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return fault.Configf(
				"axis %d is not strictly increasing at node %d.", axis, i,
			)
		}
	}
	return nil
}

func uniformSpacing(xs []float64, axis int) (float64, error) {
	h := (xs[len(xs)-1] - xs[0]) / float64(len(xs)-1)
	for i := 1; i < len(xs); i++ {
		if math.Abs((xs[i]-xs[i-1])-h) > uniformTol*h {
			return 0, fault.Configf(
				"horizontal axis %d is not uniformly spaced at node %d.",
				axis, i,
			)
		}
	}
	return h, nil
}

// Elements returns the number of local elements.
func (m *Mesh) Elements() int { return m.ElemGrid.Volume }

// Nodes returns the number of local nodes.
func (m *Mesh) Nodes() int { return m.NodeGrid.Volume }

// ElemCoords returns the local per-axis indices of an element.
func (m *Mesh) ElemCoords(el int) [3]int {
	x, y, z := m.ElemGrid.Coords(el)
	o := m.ElemGrid.Origin
	return [3]int{x - o[0], y - o[1], z - o[2]}
}

// Elem returns the element with the given local per-axis indices.
func (m *Mesh) Elem(ix, iy, iz int) int {
	o := m.ElemGrid.Origin
	return m.ElemGrid.Idx(ix+o[0], iy+o[1], iz+o[2])
}

// Node returns the node with the given local per-axis indices.
func (m *Mesh) Node(ix, iy, iz int) int {
	o := m.NodeGrid.Origin
	return m.NodeGrid.Idx(ix+o[0], iy+o[1], iz+o[2])
}

// NodePos returns the coordinates of a node.
func (m *Mesh) NodePos(n int) geom.Vec {
	x, y, z := m.NodeGrid.Coords(n)
	o := m.NodeGrid.Origin
	return geom.Vec{
		m.Axes[0][x-o[0]], m.Axes[1][y-o[1]], m.Axes[2][z-o[2]],
	}
}

// ElemNodes returns the eight corner nodes of an element. The first four
// corners lie on the lower vertical face in counter-clockwise order starting
// from the origin, and the last four repeat that order on the upper face.
func (m *Mesh) ElemNodes(el int) [8]int {
	c := m.ElemCoords(el)
	x, y, z := c[0], c[1], c[2]
	return [8]int{
		m.Node(x, y, z), m.Node(x+1, y, z),
		m.Node(x+1, y+1, z), m.Node(x, y+1, z),
		m.Node(x, y, z+1), m.Node(x+1, y, z+1),
		m.Node(x+1, y+1, z+1), m.Node(x, y+1, z+1),
	}
}

// Corner returns the per-axis offset bits of corner i of an element.
func Corner(i int) [3]int {
	return corners[i]
}

var corners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// ElemOrigin returns the lower corner of an element.
func (m *Mesh) ElemOrigin(el int) geom.Vec {
	c := m.ElemCoords(el)
	return geom.Vec{m.Axes[0][c[0]], m.Axes[1][c[1]], m.Axes[2][c[2]]}
}

// ElemSize returns the coordinate widths of an element.
func (m *Mesh) ElemSize(el int) geom.Vec {
	c := m.ElemCoords(el)
	return geom.Vec{
		m.Axes[0][c[0]+1] - m.Axes[0][c[0]],
		m.Axes[1][c[1]+1] - m.Axes[1][c[1]],
		m.Axes[2][c[2]+1] - m.Axes[2][c[2]],
	}
}

// Volume returns the physical volume of an element. Spherical volumes are
// evaluated at the element center.
func (m *Mesh) Volume(el int) float64 {
	h := m.ElemSize(el)
	vol := h[0] * h[1] * h[2]
	if m.System == Spherical {
		c := m.ElemOrigin(el).Add(h.Scale(0.5))
		vol *= c[2] * c[2] * math.Sin(c[0])
	}
	return vol
}

// Boundary returns true if the element touches a face of the local subdomain.
func (m *Mesh) Boundary(el int) bool { return m.boundary[el] }

// Lo returns the lower corner of the local subdomain.
func (m *Mesh) Lo() geom.Vec {
	return geom.Vec{m.Axes[0][0], m.Axes[1][0], m.Axes[2][0]}
}

// Hi returns the upper corner of the local subdomain.
func (m *Mesh) Hi() geom.Vec {
	return geom.Vec{
		m.Axes[0][len(m.Axes[0])-1],
		m.Axes[1][len(m.Axes[1])-1],
		m.Axes[2][len(m.Axes[2])-1],
	}
}

// Contains returns true if p lies within the closed local bounding box.
func (m *Mesh) Contains(p geom.Vec) bool {
	lo, hi := m.Lo(), m.Hi()
	for i := 0; i < 3; i++ {
		if p[i] < lo[i] || p[i] > hi[i] {
			return false
		}
	}
	return true
}

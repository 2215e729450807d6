package geom

// Grid provides an interface for reasoning over a 1D slice as if it were a
// 3D grid. The vertical (third) axis varies fastest, followed by the first
// and then the second axis.
type Grid struct {
	CellBounds
	Column, Slab, Volume int
	uBounds              [3]int
}

// CellBounds represents a bounding box aligned to grid cells.
type CellBounds struct {
	Origin, Width [3]int
}

// NewGrid returns a new Grid instance.
func NewGrid(origin [3]int, width [3]int) *Grid {
	g := &Grid{}
	g.Init(origin, width)
	return g
}

// Init initializes a Grid instance.
func (g *Grid) Init(origin [3]int, width [3]int) {
	g.Origin = origin
	g.Width = width

	g.Column = width[2]
	g.Slab = width[2] * width[0]
	g.Volume = width[0] * width[1] * width[2]

	for i := 0; i < 3; i++ {
		g.uBounds[i] = g.Origin[i] + g.Width[i]
	}
}

// Idx returns the grid index corresponding to a set of coordinates.
func (g *Grid) Idx(x, y, z int) int {
	return (z - g.Origin[2]) + (x-g.Origin[0])*g.Column +
		(y-g.Origin[1])*g.Slab
}

// IdxCheck returns an index and true if the given coordinate are valid and
// false otherwise.
func (g *Grid) IdxCheck(x, y, z int) (idx int, ok bool) {
	if !g.BoundsCheck(x, y, z) {
		return -1, false
	}
	return g.Idx(x, y, z), true
}

// BoundsCheck returns true if the given coordinates are within the Grid and
// false otherwise.
func (g *Grid) BoundsCheck(x, y, z int) bool {
	return (g.Origin[0] <= x && g.Origin[1] <= y && g.Origin[2] <= z) &&
		(x < g.uBounds[0] && y < g.uBounds[1] && z < g.uBounds[2])
}

// Coords returns the x, y, z coordinates of a point from its grid index.
func (g *Grid) Coords(idx int) (x, y, z int) {
	z = idx%g.Column + g.Origin[2]
	x = (idx%g.Slab)/g.Column + g.Origin[0]
	y = idx/g.Slab + g.Origin[1]
	return x, y, z
}

// Intersect returns the overlap of two bounding boxes and true if they
// overlap. Boxes are not wrapped around any periodic boundary.
func (cb1 *CellBounds) Intersect(cb2 *CellBounds) (CellBounds, bool) {
	out := CellBounds{}
	for i := 0; i < 3; i++ {
		lo := maxInt(cb1.Origin[i], cb2.Origin[i])
		hi := minInt(cb1.Origin[i]+cb1.Width[i], cb2.Origin[i]+cb2.Width[i])
		if hi <= lo {
			return CellBounds{}, false
		}
		out.Origin[i], out.Width[i] = lo, hi-lo
	}
	return out, true
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

package locate

import (
	"math"
)

// cellsPerElement is the minimum number of table cells covering the thinnest
// element.
const cellsPerElement = 3

// axisTable maps a coordinate along a stretched axis to the element
// containing it without searching.
type axisTable struct {
	nodes  []float64
	z0, dz float64
	// cells[i] is the element containing the whole of cell i, or -1 if an
	// element boundary falls inside the cell.
	cells []int
}

func newAxisTable(nodes []float64) *axisTable {
	minH := math.Inf(+1)
	for i := 1; i < len(nodes); i++ {
		minH = math.Min(minH, nodes[i]-nodes[i-1])
	}

	z0, z1 := nodes[0], nodes[len(nodes)-1]
	n := int(math.Ceil((z1 - z0) * cellsPerElement / minH))
	tab := &axisTable{
		nodes: nodes, z0: z0, dz: (z1 - z0) / float64(n),
		cells: make([]int, n),
	}

	el := 0
	for i := range tab.cells {
		lo := z0 + float64(i)*tab.dz
		hi := lo + tab.dz
		for el < len(nodes)-2 && nodes[el+1] <= lo {
			el++
		}
		if hi <= nodes[el+1] || el == len(nodes)-2 {
			tab.cells[i] = el
		} else {
			tab.cells[i] = -1
		}
	}
	return tab
}

// elem returns the element containing z and false if z lies outside the
// tabulated range.
func (tab *axisTable) elem(z float64) (int, bool) {
	top := tab.nodes[len(tab.nodes)-1]
	if z < tab.z0 || z > top {
		return -1, false
	}

	i := int((z - tab.z0) / tab.dz)
	if i >= len(tab.cells) {
		i = len(tab.cells) - 1
	}
	if el := tab.cells[i]; el >= 0 {
		return el, true
	}

	// The cell straddles a boundary, so z belongs to the element filling
	// one of the adjacent cells.
	for _, j := range []int{i - 1, i + 1} {
		if j < 0 || j >= len(tab.cells) || tab.cells[j] < 0 {
			continue
		}
		el := tab.cells[j]
		if tab.nodes[el] <= z && z <= tab.nodes[el+1] {
			return el, true
		}
	}
	return -1, false
}

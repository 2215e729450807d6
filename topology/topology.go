/*package topology describes how a structured mesh is split across a
three-dimensional grid of processes.

Ranks are numbered with the vertical axis varying fastest:

    rank = pz + px*Procs[2] + py*Procs[0]*Procs[2]
*/
package topology

import (
	"fmt"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
)

// Decomposition is a static partition of a global structured mesh of
// Elements[0] x Elements[1] x Elements[2] elements among
// Procs[0] x Procs[1] x Procs[2] processes.
type Decomposition struct {
	Procs    [3]int
	Elements [3]int
	Periodic [3]bool

	local [3]int
	grid  geom.Grid
}

// New returns a Decomposition after checking that every process receives
// the same number of elements along each axis.
func New(procs, elements [3]int, periodic [3]bool) (*Decomposition, error) {
	d := &Decomposition{Procs: procs, Elements: elements, Periodic: periodic}
	for i := 0; i < 3; i++ {
		if procs[i] <= 0 {
			return nil, fault.Configf(
				"process count %d along axis %d must be positive.", procs[i], i,
			)
		} else if elements[i] <= 0 {
			return nil, fault.Configf(
				"element count %d along axis %d must be positive.",
				elements[i], i,
			)
		} else if elements[i]%procs[i] != 0 {
			return nil, fault.Configf(
				"%d elements along axis %d cannot be split evenly "+
					"between %d processes.", elements[i], i, procs[i],
			)
		}
		d.local[i] = elements[i] / procs[i]
	}
	if periodic[2] {
		return nil, fault.Configf("the vertical axis cannot be periodic.")
	}
	d.grid.Init([3]int{}, procs)
	return d, nil
}

// Size returns the number of processes.
func (d *Decomposition) Size() int { return d.grid.Volume }

// Rank returns the rank of the process at the given process coordinates.
func (d *Decomposition) Rank(c [3]int) int {
	return d.grid.Idx(c[0], c[1], c[2])
}

// Coords returns the process coordinates of a rank.
func (d *Decomposition) Coords(rank int) [3]int {
	x, y, z := d.grid.Coords(rank)
	return [3]int{x, y, z}
}

// LocalElements returns the number of elements owned by each process along
// each axis.
func (d *Decomposition) LocalElements() [3]int { return d.local }

// ElementOffset returns the global index of the first element owned by rank
// along each axis.
func (d *Decomposition) ElementOffset(rank int) [3]int {
	c := d.Coords(rank)
	return [3]int{c[0] * d.local[0], c[1] * d.local[1], c[2] * d.local[2]}
}

// NodeBounds returns the global node indices owned by rank. Neighboring
// ranks share the nodes on their common faces.
func (d *Decomposition) NodeBounds(rank int) geom.CellBounds {
	off := d.ElementOffset(rank)
	return geom.CellBounds{
		Origin: off,
		Width:  [3]int{d.local[0] + 1, d.local[1] + 1, d.local[2] + 1},
	}
}

func (d *Decomposition) String() string {
	return fmt.Sprintf("Decomposition{Procs: %v, Elements: %v, Periodic: %v}",
		d.Procs, d.Elements, d.Periodic)
}

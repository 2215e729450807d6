package topology

import (
	"github.com/phil-mansfield/gomarker/fault"
)

// Neighbors is the list of processes adjacent to one rank, including
// face, edge and corner neighbors and neighbors across periodic axes.
type Neighbors struct {
	Me    int
	Ranks []int
	slot  map[int]int
}

// Neighbors computes the neighbor list of a rank. Each neighboring rank
// appears once, even when periodicity makes it adjacent along several
// directions, and a rank is never its own neighbor.
func (d *Decomposition) Neighbors(rank int) *Neighbors {
	nb := &Neighbors{Me: rank, slot: map[int]int{}}
	me := d.Coords(rank)

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			for dz := -1; dz <= 1; dz++ {
				c, ok := d.shift(me, [3]int{dx, dy, dz})
				if !ok {
					continue
				}
				r := d.Rank(c)
				if _, seen := nb.slot[r]; seen || r == rank {
					continue
				}
				nb.slot[r] = len(nb.Ranks)
				nb.Ranks = append(nb.Ranks, r)
			}
		}
	}
	return nb
}

func (d *Decomposition) shift(c, delta [3]int) ([3]int, bool) {
	for i := 0; i < 3; i++ {
		c[i] += delta[i]
		if c[i] >= 0 && c[i] < d.Procs[i] {
			continue
		} else if !d.Periodic[i] {
			return c, false
		}
		c[i] = (c[i] + d.Procs[i]) % d.Procs[i]
	}
	return c, true
}

// Len returns the number of neighbors.
func (nb *Neighbors) Len() int { return len(nb.Ranks) }

// Slot returns the position of rank within the neighbor list. A rank which is
// not a neighbor is a TopologyError.
func (nb *Neighbors) Slot(rank int) (int, error) {
	i, ok := nb.slot[rank]
	if !ok {
		return -1, fault.Topologyf(
			nb.Me, "rank %d is not among the neighbors %v.", rank, nb.Ranks,
		)
	}
	return i, nil
}

/*package halo combines nodal values at nodes which are shared between the
subdomains of neighboring processes.
*/
package halo

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/phil-mansfield/gomarker/comm"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

// Exchanger knows which local nodes are shared with which neighbors.
type Exchanger struct {
	t     comm.Transport
	links []link
	buf   []byte
}

// link pairs local nodes with the copies of the same nodes held by rank.
// Values of send[i] are sent and the matching value received from rank is
// merged into recv[i]. Both sides list the pairs in the same order.
type link struct {
	rank       int
	send, recv []int
}

type nodePair struct {
	mine, theirs [3]int
}

// New finds the nodes m shares with each neighbor in nb. Along periodic axes
// global node indices are matched modulo the element count, so the nodes on
// either side of a periodic seam are the same node. A rank which wraps onto
// itself gets a link to itself.
func New(
	t comm.Transport, m *mesh.Mesh, d *topology.Decomposition,
	nb *topology.Neighbors,
) *Exchanger {
	x := &Exchanger{t: t}
	me := t.Rank()
	mine := d.NodeBounds(me)

	for _, r := range append(append([]int{}, nb.Ranks...), me) {
		theirs := d.NodeBounds(r)
		pairs := matchNodes(d, &mine, &theirs, r == me)
		if len(pairs) == 0 {
			continue
		}

		// Order by the lower rank's node first so both sides agree.
		sort.Slice(pairs, func(i, j int) bool {
			a, b := pairs[i], pairs[j]
			if r < me {
				a.mine, a.theirs = a.theirs, a.mine
				b.mine, b.theirs = b.theirs, b.mine
			}
			if a.mine != b.mine {
				return lessCoords(a.mine, b.mine)
			}
			return lessCoords(a.theirs, b.theirs)
		})

		l := link{
			rank: r, send: make([]int, len(pairs)), recv: make([]int, len(pairs)),
		}
		for i, p := range pairs {
			l.send[i] = m.NodeGrid.Idx(p.mine[0], p.mine[1], p.mine[2])
			if r == me {
				l.recv[i] = m.NodeGrid.Idx(p.theirs[0], p.theirs[1], p.theirs[2])
			} else {
				l.recv[i] = l.send[i]
			}
		}
		x.links = append(x.links, l)
	}
	return x
}

// matchNodes returns every pair of global node coordinates, one in each of
// two node ranges, which refer to the same node. Identical coordinates are
// skipped when both ranges belong to the same rank.
func matchNodes(
	d *topology.Decomposition, mine, theirs *geom.CellBounds, self bool,
) []nodePair {
	var axes [3][][2]int
	for i := 0; i < 3; i++ {
		for g := mine.Origin[i]; g < mine.Origin[i]+mine.Width[i]; g++ {
			for h := theirs.Origin[i]; h < theirs.Origin[i]+theirs.Width[i]; h++ {
				same := g == h
				if d.Periodic[i] && !same {
					same = (g-h)%d.Elements[i] == 0
				}
				if same {
					axes[i] = append(axes[i], [2]int{g, h})
				}
			}
		}
	}

	var pairs []nodePair
	for _, py := range axes[1] {
		for _, px := range axes[0] {
			for _, pz := range axes[2] {
				p := nodePair{
					mine:   [3]int{px[0], py[0], pz[0]},
					theirs: [3]int{px[1], py[1], pz[1]},
				}
				if self && p.mine == p.theirs {
					continue
				}
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

func lessCoords(a, b [3]int) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Shared returns the number of links, counting a link to the local rank.
func (x *Exchanger) Shared() int { return len(x.links) }

// Sum adds every neighbor's contribution into vals at shared nodes.
func (x *Exchanger) Sum(ctx context.Context, vals []float64) error {
	return x.Reduce(ctx, 1, vals, func(mine, theirs []float64) {
		mine[0] += theirs[0]
	})
}

// Merge combines a neighbor's tuple at one node into the local tuple.
type Merge func(mine, theirs []float64)

// Reduce combines width-sized tuples at shared nodes. vals[n*width:(n+1)*width]
// is the tuple of node n. Every process sends its values from before any
// merging, so all sides of a node see the same set of contributions.
func (x *Exchanger) Reduce(
	ctx context.Context, width int, vals []float64, merge Merge,
) error {
	for _, l := range x.links {
		x.buf = x.buf[:0]
		for _, n := range l.send {
			for _, v := range vals[n*width : (n+1)*width] {
				x.buf = binary.LittleEndian.AppendUint64(
					x.buf, math.Float64bits(v),
				)
			}
		}
		if err := x.t.Send(ctx, l.rank, comm.TagHalo, x.buf); err != nil {
			return err
		}
	}

	theirs := make([]float64, width)
	for _, l := range x.links {
		msg, err := x.t.Recv(ctx, l.rank, comm.TagHalo)
		if err != nil {
			return err
		}
		if len(msg) != 8*width*len(l.recv) {
			return fmt.Errorf(
				"rank %d sent %d halo bytes, expected %d",
				l.rank, len(msg), 8*width*len(l.recv),
			)
		}
		for i, n := range l.recv {
			for j := range theirs {
				k := 8 * (i*width + j)
				theirs[j] = math.Float64frombits(
					binary.LittleEndian.Uint64(msg[k:]),
				)
			}
			merge(vals[n*width:(n+1)*width], theirs)
		}
	}
	return nil
}

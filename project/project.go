/*package project reduces the marker population of each process to nodal
fields.

Every field is computed the same way: markers are aggregated per element,
the aggregates are scattered onto element corners, contributions at nodes
shared with other processes are merged, and each node's total is
normalized. Only the aggregation, merge and normalization rules differ
between fields.
*/
package project

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/halo"
	"github.com/phil-mansfield/gomarker/io"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
)

// Reducer merges nodal tuples at nodes shared with other processes.
type Reducer interface {
	Reduce(ctx context.Context, width int, vals []float64, merge halo.Merge) error
}

// FlavorMethod is the rule used to project flavors.
type FlavorMethod int

const (
	NoFlavors FlavorMethod = iota
	// Nearest gives each node the flavor of the closest marker in the
	// elements touching it.
	Nearest
	// Mean gives each node the rounded, weighted mean of elemental mean
	// flavors.
	Mean
)

func (fm FlavorMethod) String() string {
	switch fm {
	case NoFlavors:
		return "none"
	case Nearest:
		return io.NearestFlavor
	case Mean:
		return io.MeanFlavor
	}
	return fmt.Sprintf("FlavorMethod(%d)", int(fm))
}

// Projector computes nodal fields for one process.
type Projector struct {
	m      *mesh.Mesh
	w      *mesh.Weights
	x      Reducer
	layout marker.Layout

	denseFraction bool
	perElem       int
	method        FlavorMethod

	// ce is the elemental composition. It persists between calls so that
	// empty elements can keep their previous value.
	ce []float64

	n0, n1 []int
	elem   []float64
	acc    []float64
	log    *zap.Logger
}

// New creates a Projector. maxFlavor is the largest flavor value carried by
// any marker on any process and decides the flavor method when the
// configuration leaves it to be chosen automatically.
func New(
	con *io.MarkerConfig, layout marker.Layout, m *mesh.Mesh, w *mesh.Weights,
	x Reducer, maxFlavor int, log *zap.Logger,
) (*Projector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Projector{
		m: m, w: w, x: x, layout: layout,
		denseFraction: con.CompositionPolicy == io.DenseFraction,
		perElem:       con.MarkersPerElement,
		ce:            make([]float64, m.Elements()),
		n0:            make([]int, m.Elements()),
		n1:            make([]int, m.Elements()),
		elem:          make([]float64, m.Elements()),
		log:           log,
	}

	if layout.Flavors > 0 {
		switch con.FlavorPolicy {
		case io.NearestFlavor:
			p.method = Nearest
		case io.MeanFlavor:
			if maxFlavor > 1 {
				return nil, fault.Configf(
					"the %s flavor policy only supports binary flavors, "+
						"but flavors reach %d.", io.MeanFlavor, maxFlavor,
				)
			}
			p.method = Mean
		default:
			p.method = Mean
			if maxFlavor > 1 {
				p.method = Nearest
			}
		}
	}
	return p, nil
}

// Method returns the flavor projection method.
func (p *Projector) Method() FlavorMethod { return p.method }

// ElementComposition returns the elemental composition from the most recent
// call to Composition.
func (p *Projector) ElementComposition() []float64 { return p.ce }

// SetElementComposition replaces the elemental composition, e.g. when
// resuming from a restart.
func (p *Projector) SetElementComposition(ce []float64) error {
	if len(ce) != len(p.ce) {
		return fmt.Errorf(
			"%d elemental composition values given for %d elements",
			len(ce), len(p.ce),
		)
	}
	copy(p.ce, ce)
	return nil
}

// reduce runs the shared projection pattern on width-sized nodal tuples.
// deposit scatters element aggregates into acc, merge combines tuples at
// shared nodes, and finish normalizes each node's tuple.
func (p *Projector) reduce(
	ctx context.Context, width int, init float64,
	deposit func(acc []float64), merge halo.Merge,
	finish func(node int, tuple []float64),
) error {
	n := width * p.m.Nodes()
	if cap(p.acc) < n {
		p.acc = make([]float64, n)
	}
	acc := p.acc[:n]
	for i := range acc {
		acc[i] = init
	}

	deposit(acc)
	if err := p.x.Reduce(ctx, width, acc, merge); err != nil {
		return err
	}
	for node := 0; node < p.m.Nodes(); node++ {
		finish(node, acc[node*width:(node+1)*width])
	}
	return nil
}

func sum(mine, theirs []float64) { mine[0] += theirs[0] }

// weighted scatters elemental values with the lumped corner weights and
// normalizes by the inverse nodal mass.
func (p *Projector) weighted(
	ctx context.Context, elem []float64, finish func(node int, val float64),
) error {
	deposit := func(acc []float64) {
		for el := range elem {
			for i, n := range p.m.ElemNodes(el) {
				acc[n] += p.w.Corner[el][i] * elem[el]
			}
		}
	}
	return p.reduce(ctx, 1, 0, deposit, sum, func(n int, t []float64) {
		finish(n, t[0]*p.w.InvMass[n])
	})
}

// Composition writes the nodal composition into out.
func (p *Projector) Composition(
	ctx context.Context, set *marker.Set, out []float64,
) error {
	p.count(set)
	for el := range p.ce {
		n0, n1 := float64(p.n0[el]), float64(p.n1[el])
		switch {
		case p.denseFraction:
			p.ce[el] = math.Min(n1/float64(p.perElem), 1)
		case n0+n1 > 0:
			p.ce[el] = n1 / (n0 + n1)
		}
	}
	return p.weighted(ctx, p.ce, func(n int, val float64) { out[n] = val })
}

func (p *Projector) count(set *marker.Set) {
	for el := range p.n0 {
		p.n0[el], p.n1[el] = 0, 0
	}
	for _, mk := range set.Markers() {
		if mk.Comp == 1 {
			p.n1[mk.Elem]++
		} else {
			p.n0[mk.Elem]++
		}
	}
}

// elementMean writes the mean of val over the markers of each element into
// p.elem. Empty elements get zero.
func (p *Projector) elementMean(set *marker.Set, val func(mk *marker.Marker) float64) {
	for el := range p.elem {
		p.elem[el], p.n0[el] = 0, 0
	}
	ms := set.Markers()
	for i := range ms {
		p.elem[ms[i].Elem] += val(&ms[i])
		p.n0[ms[i].Elem]++
	}
	for el := range p.elem {
		if p.n0[el] > 0 {
			p.elem[el] /= float64(p.n0[el])
		}
	}
}

// Strain writes the nodal scalar strain into out.
func (p *Projector) Strain(
	ctx context.Context, set *marker.Set, out []float64,
) error {
	if p.layout.Strain == 0 {
		return nil
	}
	p.elementMean(set, func(mk *marker.Marker) float64 { return mk.Strain[0] })
	return p.weighted(ctx, p.elem, func(n int, val float64) { out[n] = val })
}

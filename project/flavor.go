package project

import (
	"context"
	"math"

	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
)

// Flavor writes the nodal value of flavor k into out[k]. Nodes which no
// marker is near keep their previous values under the nearest method.
func (p *Projector) Flavor(
	ctx context.Context, set *marker.Set, out [][]int,
) error {
	switch p.method {
	case Nearest:
		return p.nearest(ctx, set, out)
	case Mean:
		for k := 0; k < p.layout.Flavors; k++ {
			p.elementMean(set, func(mk *marker.Marker) float64 {
				return float64(mk.Flavors[k])
			})
			err := p.weighted(ctx, p.elem, func(n int, val float64) {
				out[k][n] = int(val + 0.5)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// nearest reduces (distance, flavor...) tuples, keeping the closest marker at
// every node. Ties go to the smaller flavor tuple so that every process
// agrees on shared nodes.
func (p *Projector) nearest(
	ctx context.Context, set *marker.Set, out [][]int,
) error {
	width := 1 + p.layout.Flavors
	cand := make([]float64, width)
	deposit := func(acc []float64) {
		ms := set.Markers()
		for i := range ms {
			mk := &ms[i]
			for k := 1; k < width; k++ {
				cand[k] = float64(mk.Flavors[k-1])
			}
			for _, n := range p.m.ElemNodes(mk.Elem) {
				cand[0] = p.distance(p.m.NodePos(n), mk.Pos)
				closer(acc[n*width:(n+1)*width], cand)
			}
		}
	}

	return p.reduce(ctx, width, math.Inf(+1), deposit, closer,
		func(n int, t []float64) {
			if math.IsInf(t[0], +1) {
				return
			}
			for k := 1; k < width; k++ {
				out[k-1][n] = int(t[k])
			}
		})
}

// closer replaces mine with theirs if theirs is nearer.
func closer(mine, theirs []float64) {
	if theirs[0] > mine[0] {
		return
	} else if theirs[0] == mine[0] {
		for k := 1; k < len(mine); k++ {
			if theirs[k] != mine[k] {
				if theirs[k] > mine[k] {
					return
				}
				break
			}
		}
	}
	copy(mine, theirs)
}

func (p *Projector) distance(a, b geom.Vec) float64 {
	if p.m.System == mesh.Spherical {
		return a.Cartesian().Sub(b.Cartesian()).Norm()
	}
	return a.Sub(b).Norm()
}

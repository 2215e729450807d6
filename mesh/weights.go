package mesh

import (
	"context"
)

// NodeReducer sums nodal values at nodes shared with other processes, so that
// every process sees the total over all elements touching each node.
type NodeReducer interface {
	Sum(ctx context.Context, vals []float64) error
}

// Weights holds the lumped trilinear scatter weights of each element corner
// and the inverse of the lumped nodal mass they add up to.
type Weights struct {
	// Corner[el][i] is the weight element el gives node ElemNodes(el)[i].
	Corner [][8]float64
	// InvMass[n] is one over the sum of every corner weight touching node n,
	// across all processes.
	InvMass []float64
}

// LumpedWeights computes the weights of m. Each corner of an element
// receives an eighth of its volume.
func LumpedWeights(ctx context.Context, m *Mesh, red NodeReducer) (*Weights, error) {
	w := &Weights{
		Corner:  make([][8]float64, m.Elements()),
		InvMass: make([]float64, m.Nodes()),
	}

	for el := range w.Corner {
		v := m.Volume(el) / 8
		nodes := m.ElemNodes(el)
		for i := range nodes {
			w.Corner[el][i] = v
			w.InvMass[nodes[i]] += v
		}
	}

	if err := red.Sum(ctx, w.InvMass); err != nil {
		return nil, err
	}
	for n := range w.InvMass {
		w.InvMass[n] = 1 / w.InvMass[n]
	}
	return w, nil
}

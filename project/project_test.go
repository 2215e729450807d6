package project

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/phil-mansfield/gomarker/comm"
	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/halo"
	"github.com/phil-mansfield/gomarker/io"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type solo struct{}

func (solo) Reduce(context.Context, int, []float64, halo.Merge) error { return nil }
func (solo) Sum(context.Context, []float64) error                     { return nil }

func config(policy string, perElem int) *io.MarkerConfig {
	con := io.DefaultRunWrapper().Markers
	con.MarkersPerElement = perElem
	con.CompositionPolicy = policy
	return &con
}

type fixture struct {
	loc *locate.Localizer
	m   *mesh.Mesh
	w   *mesh.Weights
}

func newFixture(t *testing.T, elems [3]int) *fixture {
	d, err := topology.New([3]int{1, 1, 1}, elems, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		mesh.UniformAxis(0, 1, elems[0]), mesh.UniformAxis(0, 1, elems[1]),
		mesh.UniformAxis(0, 1, elems[2]),
	}
	m, err := mesh.New(mesh.Cartesian, axes, d, 0)
	require.NoError(t, err)
	w, err := mesh.LumpedWeights(context.Background(), m, solo{})
	require.NoError(t, err)
	return &fixture{loc: locate.New(m, d, 0), m: m, w: w}
}

func (f *fixture) add(t *testing.T, set *marker.Set, p geom.Vec, comp int) *marker.Marker {
	el, _, err := f.loc.Element(p)
	require.NoError(t, err)
	require.NoError(t, set.Append(marker.Marker{Pos: p, Pred: p, Elem: el, Comp: comp}))
	return set.At(set.Len() - 1)
}

func (f *fixture) fill(t *testing.T, set *marker.Set, dense, ambient int) {
	for i := 0; i < dense; i++ {
		f.add(t, set, geom.Vec{0.5, 0.5, 0.1 + 0.01*float64(i)}, 1)
	}
	for i := 0; i < ambient; i++ {
		f.add(t, set, geom.Vec{0.5, 0.5, 0.9 - 0.01*float64(i)}, 0)
	}
}

func assertAll(t *testing.T, want float64, out []float64, msg string) {
	for n, x := range out {
		if !assert.InDelta(t, want, x, 1e-12, "%s: node %d", msg, n) {
			return
		}
	}
}

func TestRatioComposition(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	p, err := New(config(io.Ratio, 10), marker.Layout{}, f.m, f.w, solo{}, 0, nil)
	require.NoError(t, err)
	out := make([]float64, f.m.Nodes())
	ctx := context.Background()

	set := marker.NewSet(20)
	f.fill(t, set, 3, 9)
	require.NoError(t, p.Composition(ctx, set, out))
	assertAll(t, 0.25, out, "3 of 12 dense")
	assert.Equal(t, []float64{0.25}, p.ElementComposition())

	// An empty element keeps its previous value.
	set.Reset()
	require.NoError(t, p.Composition(ctx, set, out))
	assertAll(t, 0.25, out, "empty element")
}

func TestDenseFractionComposition(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	p, err := New(config(io.DenseFraction, 4), marker.Layout{}, f.m, f.w, solo{}, 0, nil)
	require.NoError(t, err)
	out := make([]float64, f.m.Nodes())
	ctx := context.Background()

	table := []struct {
		dense, ambient int
		want           float64
	}{
		{3, 5, 0.75},
		{6, 0, 1},
		// Unlike the ratio policy, an empty element resets to zero.
		{0, 0, 0},
	}

	for i, test := range table {
		set := marker.NewSet(20)
		f.fill(t, set, test.dense, test.ambient)
		require.NoError(t, p.Composition(ctx, set, out))
		if out[0] != test.want {
			t.Errorf("%d) Expected %g, got %g.", i, test.want, out[0])
		}
	}
}

// TestCompositionStretched checks that a spatially uniform elemental value
// projects to the same nodal value on an irregular mesh.
func TestCompositionStretched(t *testing.T) {
	d, err := topology.New([3]int{1, 1, 1}, [3]int{3, 2, 4}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		mesh.UniformAxis(0, 3, 3), mesh.UniformAxis(0, 1, 2),
		{0, 0.1, 0.15, 0.6, 1},
	}
	m, err := mesh.New(mesh.Cartesian, axes, d, 0)
	require.NoError(t, err)
	w, err := mesh.LumpedWeights(context.Background(), m, solo{})
	require.NoError(t, err)
	p, err := New(config(io.Ratio, 1), marker.Layout{}, m, w, solo{}, 0, nil)
	require.NoError(t, err)

	set := marker.NewSet(2 * m.Elements())
	for el := 0; el < m.Elements(); el++ {
		set.Append(marker.Marker{Elem: el, Comp: 1})
		set.Append(marker.Marker{Elem: el, Comp: 0})
	}
	out := make([]float64, m.Nodes())
	require.NoError(t, p.Composition(context.Background(), set, out))
	assertAll(t, 0.5, out, "uniform")
}

func TestStrain(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	p, err := New(config(io.Ratio, 1), marker.Layout{Strain: 1}, f.m, f.w, solo{}, 0, nil)
	require.NoError(t, err)

	set := marker.NewSet(4)
	for _, s := range []float64{0.5, 1.5, 2.5} {
		f.add(t, set, geom.Vec{0.5, 0.5, 0.5}, 0).Strain[0] = s
	}
	out := make([]float64, f.m.Nodes())
	require.NoError(t, p.Strain(context.Background(), set, out))
	assertAll(t, 1.5, out, "strain")
}

func TestFlavorMethod(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	l := marker.Layout{Flavors: 1}

	table := []struct {
		policy    string
		maxFlavor int
		want      FlavorMethod
	}{
		{io.AutoFlavor, 1, Mean},
		{io.AutoFlavor, 3, Nearest},
		{io.NearestFlavor, 1, Nearest},
		{io.MeanFlavor, 1, Mean},
	}
	for i, test := range table {
		con := config(io.Ratio, 1)
		con.FlavorPolicy = test.policy
		p, err := New(con, l, f.m, f.w, solo{}, test.maxFlavor, nil)
		require.NoError(t, err)
		if p.Method() != test.want {
			t.Errorf("%d) Expected %s, got %s.", i, test.want, p.Method())
		}
	}

	con := config(io.Ratio, 1)
	con.FlavorPolicy = io.MeanFlavor
	_, err := New(con, l, f.m, f.w, solo{}, 2, nil)
	assert.True(t, errors.Is(err, fault.Configuration))

	p, err := New(con, marker.Layout{}, f.m, f.w, solo{}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, NoFlavors, p.Method())
}

func TestMeanFlavor(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	con := config(io.Ratio, 1)
	con.FlavorPolicy = io.MeanFlavor
	p, err := New(con, marker.Layout{Flavors: 2}, f.m, f.w, solo{}, 1, nil)
	require.NoError(t, err)

	set := marker.NewSet(4)
	for i := 0; i < 4; i++ {
		mk := f.add(t, set, geom.Vec{0.5, 0.5, 0.5}, 0)
		mk.Flavors[0] = 1
		if i == 0 {
			mk.Flavors[0] = 0
		}
		if i == 1 {
			mk.Flavors[1] = 1
		}
	}

	out := [][]int{make([]int, f.m.Nodes()), make([]int, f.m.Nodes())}
	require.NoError(t, p.Flavor(context.Background(), set, out))
	for n := 0; n < f.m.Nodes(); n++ {
		assert.Equal(t, 1, out[0][n], "0.75 rounds up")
		assert.Equal(t, 0, out[1][n], "0.25 rounds down")
	}
}

func TestNearestFlavor(t *testing.T) {
	f := newFixture(t, [3]int{1, 1, 1})
	p, err := New(config(io.Ratio, 1), marker.Layout{Flavors: 1}, f.m, f.w, solo{}, 3, nil)
	require.NoError(t, err)
	require.Equal(t, Nearest, p.Method())

	set := marker.NewSet(4)
	f.add(t, set, geom.Vec{0.1, 0.1, 0.1}, 0).Flavors[0] = 2
	f.add(t, set, geom.Vec{0.9, 0.9, 0.9}, 0).Flavors[0] = 3

	out := [][]int{make([]int, f.m.Nodes())}
	require.NoError(t, p.Flavor(context.Background(), set, out))
	assert.Equal(t, 2, out[0][f.m.Node(0, 0, 0)])
	assert.Equal(t, 3, out[0][f.m.Node(1, 1, 1)])
	assert.Equal(t, 2, out[0][f.m.Node(1, 0, 0)])
	assert.Equal(t, 3, out[0][f.m.Node(1, 1, 0)])
}

// TestSharedNodes projects composition 1 on the left rank and 0 on the right
// and checks the shared plane of nodes gets the volume-weighted mean.
func TestSharedNodes(t *testing.T) {
	d, err := topology.New([3]int{2, 1, 1}, [3]int{2, 1, 1}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		mesh.UniformAxis(0, 2, 2), mesh.UniformAxis(0, 1, 1), mesh.UniformAxis(0, 1, 1),
	}
	outs := make([][]float64, 2)
	meshes := make([]*mesh.Mesh, 2)

	err = comm.NewCluster(2).Run(context.Background(), func(ctx context.Context, tr comm.Transport) error {
		m, err := mesh.New(mesh.Cartesian, axes, d, tr.Rank())
		if err != nil {
			return err
		}
		x := halo.New(tr, m, d, d.Neighbors(tr.Rank()))
		w, err := mesh.LumpedWeights(ctx, m, x)
		if err != nil {
			return err
		}
		p, err := New(config(io.Ratio, 1), marker.Layout{}, m, w, x, 0, nil)
		if err != nil {
			return err
		}
		set := marker.NewSet(1)
		set.Append(marker.Marker{Elem: 0, Comp: 1 - tr.Rank()})
		out := make([]float64, m.Nodes())
		meshes[tr.Rank()], outs[tr.Rank()] = m, out
		return p.Composition(ctx, set, out)
	})
	require.NoError(t, err)

	assert.InDelta(t, 1, outs[0][meshes[0].Node(0, 0, 0)], 1e-12)
	assert.InDelta(t, 0.5, outs[0][meshes[0].Node(1, 0, 0)], 1e-12)
	assert.InDelta(t, 0.5, outs[1][meshes[1].Node(0, 1, 1)], 1e-12)
	assert.InDelta(t, 0, outs[1][meshes[1].Node(1, 1, 1)], 1e-12)
}

// TestPeriodicSeam checks that both copies of a node on a periodic seam get
// the same composition, whether the seam joins two ranks or wraps one rank
// onto itself.
func TestPeriodicSeam(t *testing.T) {
	axes := [3][]float64{
		mesh.UniformAxis(0, 4, 4), mesh.UniformAxis(0, 1, 1), mesh.UniformAxis(0, 1, 1),
	}
	table := []struct {
		procs int
		dense func(rank, el int) bool
		// want[rank][ix] is the composition of the nodes at local x index ix.
		want [][]float64
	}{
		{2, func(rank, el int) bool { return rank == 1 },
			[][]float64{{0.5, 0, 0.5}, {0.5, 1, 0.5}}},
		{1, func(rank, el int) bool { return el == 0 },
			[][]float64{{0.5, 0.5, 0, 0, 0.5}}},
	}

	for i, test := range table {
		d, err := topology.New([3]int{test.procs, 1, 1}, [3]int{4, 1, 1}, [3]bool{true, false, false})
		require.NoError(t, err)
		outs := make([][]float64, test.procs)
		meshes := make([]*mesh.Mesh, test.procs)

		err = comm.NewCluster(test.procs).Run(context.Background(), func(ctx context.Context, tr comm.Transport) error {
			m, err := mesh.New(mesh.Cartesian, axes, d, tr.Rank())
			if err != nil {
				return err
			}
			x := halo.New(tr, m, d, d.Neighbors(tr.Rank()))
			w, err := mesh.LumpedWeights(ctx, m, x)
			if err != nil {
				return err
			}
			p, err := New(config(io.Ratio, 1), marker.Layout{}, m, w, x, 0, nil)
			if err != nil {
				return err
			}
			set := marker.NewSet(m.Elements())
			for el := 0; el < m.Elements(); el++ {
				comp := 0
				if test.dense(tr.Rank(), el) {
					comp = 1
				}
				set.Append(marker.Marker{Elem: el, Comp: comp})
			}
			out := make([]float64, m.Nodes())
			meshes[tr.Rank()], outs[tr.Rank()] = m, out
			return p.Composition(ctx, set, out)
		})
		require.NoError(t, err)

		for rank, want := range test.want {
			for ix, c := range want {
				for _, node := range []int{meshes[rank].Node(ix, 0, 0), meshes[rank].Node(ix, 1, 1)} {
					if got := outs[rank][node]; math.Abs(got-c) > 1e-12 {
						t.Errorf("%d) Expected %g at rank %d, x index %d, got %g.",
							i, c, rank, ix, got)
					}
				}
			}
		}
	}
}

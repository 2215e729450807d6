package mesh

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/topology"
)

type localSum struct{}

func (localSum) Sum(ctx context.Context, vals []float64) error { return nil }

func testMesh(t *testing.T, procs [3]int, rank int) *Mesh {
	d, err := topology.New(procs, [3]int{4, 2, 3}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		UniformAxis(0, 2, 4),
		UniformAxis(0, 1, 2),
		{0, 0.1, 0.3, 1.0},
	}
	m, err := New(Cartesian, axes, d, rank)
	require.NoError(t, err)
	return m
}

func TestLocalAxes(t *testing.T) {
	m := testMesh(t, [3]int{2, 1, 1}, 1)

	assert.Equal(t, []float64{1, 1.5, 2}, m.Axes[0])
	assert.Equal(t, [2]float64{0, 2}, m.Global[0])
	assert.Equal(t, 2*2*3, m.Elements())
	assert.Equal(t, 3*3*4, m.Nodes())
	assert.InDelta(t, 0.5, m.Spacing[0], 1e-12)
	assert.Equal(t, geom.Vec{1, 0, 0}, m.Lo())
	assert.Equal(t, geom.Vec{2, 1, 1}, m.Hi())
}

func TestElemNodes(t *testing.T) {
	m := testMesh(t, [3]int{1, 1, 1}, 0)

	for el := 0; el < m.Elements(); el++ {
		o, h := m.ElemOrigin(el), m.ElemSize(el)
		nodes := m.ElemNodes(el)
		for i, n := range nodes {
			c := Corner(i)
			want := geom.Vec{
				o[0] + float64(c[0])*h[0],
				o[1] + float64(c[1])*h[1],
				o[2] + float64(c[2])*h[2],
			}
			if got := m.NodePos(n); got != want {
				t.Errorf("%d) Corner %d: expected %v, got %v.", el, i, want, got)
			}
		}
	}

	assert.Equal(t, 1, m.Elem(0, 0, 1))
	assert.Equal(t, 3, m.Elem(1, 0, 0))
	assert.Equal(t, [3]int{1, 0, 2}, m.ElemCoords(m.Elem(1, 0, 2)))
}

func TestBoundary(t *testing.T) {
	d, err := topology.New([3]int{1, 1, 1}, [3]int{3, 3, 3}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		UniformAxis(0, 1, 3), UniformAxis(0, 1, 3), UniformAxis(0, 1, 3),
	}
	m, err := New(Cartesian, axes, d, 0)
	require.NoError(t, err)

	interior := 0
	for el := 0; el < m.Elements(); el++ {
		if !m.Boundary(el) {
			interior++
			assert.Equal(t, m.Elem(1, 1, 1), el)
		}
	}
	assert.Equal(t, 1, interior)
}

func TestNewErrors(t *testing.T) {
	d, err := topology.New([3]int{1, 1, 1}, [3]int{2, 2, 2}, [3]bool{})
	require.NoError(t, err)

	table := []struct {
		sys  System
		axes [3][]float64
	}{
		{Cartesian, [3][]float64{{0, 0.3, 1}, {0, 0.5, 1}, {0, 0.5, 1}}},
		{Cartesian, [3][]float64{{0, 0.5, 1}, {0, 0.5, 1}, {0, 1}}},
		{Cartesian, [3][]float64{{0, 0.5, 1}, {0, 0.5, 1}, {0, 0.5, 0.5}}},
		{Spherical, [3][]float64{{0, 2, 4}, {0, 0.5, 1}, {0.5, 0.7, 1}}},
		{Spherical, [3][]float64{{1, 1.5, 2}, {0, 0.5, 1}, {0, 0.5, 1}}},
	}

	for i, test := range table {
		_, err := New(test.sys, test.axes, d, 0)
		if !errors.Is(err, fault.Configuration) {
			t.Errorf("%d) Expected ConfigurationError, got %v.", i, err)
		}
	}
}

func TestLumpedWeights(t *testing.T) {
	m := testMesh(t, [3]int{1, 1, 1}, 0)
	w, err := LumpedWeights(context.Background(), m, localSum{})
	require.NoError(t, err)

	total := 0.0
	for el := range w.Corner {
		for i := range w.Corner[el] {
			total += w.Corner[el][i]
		}
	}
	assert.InDelta(t, 2.0, total, 1e-12)

	corner := m.Node(0, 0, 0)
	assert.InDelta(t, 8/m.Volume(0), w.InvMass[corner], 1e-9)
}

func TestSphericalVolume(t *testing.T) {
	d, err := topology.New([3]int{1, 1, 1}, [3]int{8, 8, 8}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		UniformAxis(0, math.Pi, 8),
		UniformAxis(0, 2*math.Pi, 8),
		UniformAxis(0.5, 1, 8),
	}
	m, err := New(Spherical, axes, d, 0)
	require.NoError(t, err)

	vol := 0.0
	for el := 0; el < m.Elements(); el++ {
		vol += m.Volume(el)
	}
	want := 4 * math.Pi / 3 * (1 - 0.125)
	assert.InDelta(t, want, vol, 0.02*want)
}

func TestReadAxis(t *testing.T) {
	file := filepath.Join(t.TempDir(), "z.txt")
	require.NoError(t, os.WriteFile(file, []byte("0 10\n0.25 11\n1 12\n"), 0644))

	xs, err := ReadAxis(file, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 1}, xs)
}

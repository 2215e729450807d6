package marker

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/geom"
	"github.com/phil-mansfield/gomarker/locate"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

func testLocalizer(t *testing.T, sys mesh.System) *locate.Localizer {
	d, err := topology.New([3]int{1, 1, 1}, [3]int{4, 4, 4}, [3]bool{})
	require.NoError(t, err)
	axes := [3][]float64{
		mesh.UniformAxis(0, 1, 4), mesh.UniformAxis(0, 1, 4),
		{0.2, 0.3, 0.5, 0.8, 1.0},
	}
	m, err := mesh.New(sys, axes, d, 0)
	require.NoError(t, err)
	return locate.New(m, d, 0)
}

func sample(flavors, strain int) Marker {
	m := Marker{
		Pos: geom.Vec{0.1, 0.2, 0.3}, Pred: geom.Vec{0.4, 0.5, 0.6},
		Vel: geom.Vec{-1, -2, -3}, VelPred: geom.Vec{4, 5, 6},
		Elem: 17, Comp: 1,
	}
	for i := 0; i < flavors; i++ {
		m.Flavors[i] = i + 2
	}
	for i := 0; i < strain; i++ {
		m.Strain[i] = 0.5 * float64(i+1)
	}
	return m
}

func TestNewLayout(t *testing.T) {
	l, err := NewLayout(2, true, true)
	require.NoError(t, err)
	assert.Equal(t, Layout{Flavors: 2, Strain: StrainCols}, l)

	l, err = NewLayout(0, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Strain)

	_, err = NewLayout(0, false, true)
	assert.True(t, errors.Is(err, fault.Configuration))
	_, err = NewLayout(MaxFlavors+1, false, false)
	assert.True(t, errors.Is(err, fault.Configuration))
}

func TestSet(t *testing.T) {
	s := NewSet(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(Marker{Elem: i}))
	}
	assert.Equal(t, 3, s.Len())
	assert.True(t, errors.Is(s.Append(Marker{}), fault.Capacity))

	require.NoError(t, s.Resize(1))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 3, s.Cap())
	assert.True(t, errors.Is(s.Resize(4), fault.Capacity))

	s.At(0).Comp = 1
	assert.Equal(t, 1, s.Markers()[0].Comp)
}

func TestCodec(t *testing.T) {
	layouts := []Layout{{0, 0}, {2, 1}, {MaxFlavors, StrainCols}}

	for i, l := range layouts {
		in := []Marker{sample(l.Flavors, l.Strain), sample(l.Flavors, l.Strain)}
		in[1].Pos[0], in[1].Elem = 0.9, 3

		var buf []byte
		for j := range in {
			buf = l.Append(buf, &in[j])
		}
		require.Len(t, buf, 2*l.RecordSize())

		out := make([]Marker, len(in))
		rest := buf
		var err error
		for j := range out {
			rest, err = l.Decode(rest, &out[j])
			require.NoError(t, err)
		}
		assert.Empty(t, rest)
		if diff := cmp.Diff(in, out); diff != "" {
			t.Errorf("%d) Decoded markers differ (-want +got):\n%s", i, diff)
		}
	}
}

func TestCodecInactiveFields(t *testing.T) {
	l := Layout{Flavors: 1, Strain: 1}
	in := sample(MaxFlavors, StrainCols)
	var out Marker
	_, err := l.Decode(l.Append(nil, &in), &out)
	require.NoError(t, err)

	assert.Equal(t, in.Flavors[0], out.Flavors[0])
	assert.Equal(t, 0, out.Flavors[1])
	assert.Equal(t, in.Strain[0], out.Strain[0])
	assert.Equal(t, 0.0, out.Strain[1])

	_, err = l.Decode(make([]byte, l.RecordSize()-1), &out)
	assert.Error(t, err)
}

func TestUniform(t *testing.T) {
	loc := testLocalizer(t, mesh.Cartesian)
	l, err := NewLayout(1, true, true)
	require.NoError(t, err)
	s := &Seeder{Layout: l, Rule: Depth, Depth: 0.5}
	set := NewSet(1000)

	require.NoError(t, s.Uniform(set, loc, rand.New(rand.NewSource(7)), 640))
	require.Equal(t, 640, set.Len())

	m := loc.Mesh()
	for i, mk := range set.Markers() {
		if !m.Contains(mk.Pos) {
			t.Fatalf("%d) Marker at %v is outside the subdomain.", i, mk.Pos)
		}
		el, _, err := loc.Element(mk.Pos)
		require.NoError(t, err)
		assert.Equal(t, el, mk.Elem)

		want := 0
		if mk.Pos[2] <= 0.5 {
			want = 1
		}
		assert.Equal(t, want, mk.Comp)
		assert.Equal(t, want, mk.Flavors[0])
		assert.Equal(t, 1.0, mk.Strain[1])
		assert.Equal(t, 1.0, mk.Strain[9])
	}
}

func TestSphericalSeeding(t *testing.T) {
	loc := testLocalizer(t, mesh.Spherical)
	s := &Seeder{Rule: Checkerboard}
	set := NewSet(10)

	err := s.Uniform(set, loc, rand.New(rand.NewSource(1)), 10)
	assert.True(t, errors.Is(err, fault.Configuration))

	s.Rule = Depth
	require.NoError(t, s.Uniform(set, loc, rand.New(rand.NewSource(1)), 10))
	for _, mk := range set.Markers() {
		assert.True(t, loc.Mesh().Contains(mk.Pos))
	}
}

func TestDenseOnly(t *testing.T) {
	loc := testLocalizer(t, mesh.Cartesian)
	m := loc.Mesh()
	comp := make([]float64, m.Nodes())
	for n := range comp {
		if m.NodePos(n)[0] <= 0.25 {
			comp[n] = 1
		}
	}
	s := &Seeder{Composition: comp}
	set := NewSet(1000)

	require.NoError(t, s.DenseOnly(set, loc, rand.New(rand.NewSource(3)), 5))
	// Only the 16 elements of the first x column have every node dense.
	assert.Equal(t, 16*5, set.Len())
	for _, mk := range set.Markers() {
		assert.Equal(t, 1, mk.Comp)
		assert.LessOrEqual(t, mk.Pos[0], 0.25)
	}
}

func TestRestartRoundTrip(t *testing.T) {
	l := Layout{Flavors: 2, Strain: StrainCols}
	set := NewSet(10)
	for i := 0; i < 4; i++ {
		mk := sample(l.Flavors, l.Strain)
		mk.Pos[0] += float64(i)
		mk.Elem = i
		require.NoError(t, set.Append(mk))
	}
	ce := []float64{0, 0.25, 0.5, 1}
	file := filepath.Join(t.TempDir(), "restart.0")

	hd := &RestartHeader{Rank: 0, Size: 1, Step: 12, Time: 0.75}
	require.NoError(t, WriteRestart(file, hd, l, set, ce))

	rhd := &RestartHeader{}
	require.NoError(t, ReadRestartHeader(file, rhd))
	assert.Equal(t, *hd, *rhd)

	out := NewSet(10)
	outCE := make([]float64, len(ce))
	_, err := ReadRestart(file, l, out, outCE)
	require.NoError(t, err)
	assert.Equal(t, ce, outCE)
	require.Equal(t, set.Len(), out.Len())
	for i, mk := range out.Markers() {
		want := set.Markers()[i]
		assert.Equal(t, want.Pos, mk.Pos)
		assert.Equal(t, want.Pos, mk.Pred)
		assert.Equal(t, want.Elem, mk.Elem)
		assert.Equal(t, want.Comp, mk.Comp)
		assert.Equal(t, want.Flavors, mk.Flavors)
		assert.Equal(t, want.Strain, mk.Strain)
	}

	_, err = ReadRestart(file, Layout{Flavors: 1}, out, outCE)
	assert.True(t, errors.Is(err, fault.Configuration))
	_, err = ReadRestart(file, l, NewSet(2), outCE)
	assert.True(t, errors.Is(err, fault.Capacity))
}

func TestRestartNegativeCount(t *testing.T) {
	l := Layout{Flavors: 1}
	file := filepath.Join(t.TempDir(), "restart.0")
	hd := RestartHeader{Size: 1, Count: -1, Elements: 2, Flavors: 1}

	f, err := os.Create(file)
	require.NoError(t, err)
	for _, b := range []interface{}{
		DefaultEndiannessFlag, int32(binary.Size(&hd)), &hd,
	} {
		require.NoError(t, binary.Write(f, binary.LittleEndian, b))
	}
	require.NoError(t, f.Close())

	_, err = ReadRestart(file, l, NewSet(4), make([]float64, 2))
	assert.True(t, errors.Is(err, fault.Configuration), "%v", err)
}
